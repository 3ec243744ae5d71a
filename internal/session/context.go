package session

import (
	"time"

	"github.com/irihojaphet/kozi-chatbot/internal/cvflow"
	"github.com/irihojaphet/kozi-chatbot/internal/kozijobs"
)

// Context is the per-conversation side-channel of structured data distinct
// from the transcript. Each field is one known context shape; readers and
// writers share these types instead of an untyped map.
type Context struct {
	CVGeneration  *cvflow.State         `json:"cv_generation,omitempty"`
	JobsList      *JobsListContext      `json:"jobs_list,omitempty"`
	GeneralTopics *GeneralTopicsContext `json:"general_topics,omitempty"`
}

// JobsListContext remembers the job list most recently shown to the user, so
// a later "apply for job number 2" can be resolved by position.
type JobsListContext struct {
	Jobs    []kozijobs.Job `json:"jobs"`
	ShownAt time.Time      `json:"shown_at"`
}

// GeneralTopicsContext accumulates coarse topics discussed in general chat.
type GeneralTopicsContext struct {
	Topics []string `json:"topics"`
}

// merge overlays non-nil shapes of partial onto c. Shapes replace wholesale;
// there is no deep merging within a shape.
func (c *Context) merge(partial Context) {
	if partial.CVGeneration != nil {
		c.CVGeneration = partial.CVGeneration
	}
	if partial.JobsList != nil {
		c.JobsList = partial.JobsList
	}
	if partial.GeneralTopics != nil {
		c.GeneralTopics = partial.GeneralTopics
	}
}
