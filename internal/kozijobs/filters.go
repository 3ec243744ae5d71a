package kozijobs

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Filters narrows a fetched job list. Zero values mean "no constraint".
type Filters struct {
	// Category matches by case-insensitive substring.
	Category string
	// Location matches by case-insensitive substring.
	Location string
	// WorkType matches by case-insensitive equality.
	WorkType string
}

// Postings in a state outside this set are never shown to users.
var activeStatuses = map[string]bool{
	"active":    true,
	"open":      true,
	"published": true,
	"available": true,
}

type filterStep struct {
	name string
	keep func(*Job) bool
}

// applyFilters runs the filter steps sequentially, logging per-step drop counts.
func applyFilters(jobs []Job, f Filters, logger *zap.Logger) []Job {
	steps := []filterStep{
		{name: "status allow-list", keep: func(j *Job) bool {
			return activeStatuses[strings.ToLower(j.Status)]
		}},
		{name: "open positions", keep: func(j *Job) bool {
			// Unknown capacity is retained; only a known-full posting is dropped.
			if j.PositionsAvailable == nil {
				return true
			}
			return *j.PositionsAvailable > j.PositionsFilled
		}},
		{name: "category", keep: func(j *Job) bool {
			return f.Category == "" || containsFold(j.Category, f.Category)
		}},
		{name: "location", keep: func(j *Job) bool {
			return f.Location == "" || containsFold(j.Location, f.Location)
		}},
		{name: "work type", keep: func(j *Job) bool {
			return f.WorkType == "" || strings.EqualFold(j.WorkType, f.WorkType)
		}},
	}

	for _, step := range steps {
		initial := len(jobs)

		next := jobs[:0:0]
		for i := range jobs {
			if step.keep(&jobs[i]) {
				next = append(next, jobs[i])
			}
		}
		jobs = next

		if logger != nil && initial != len(jobs) {
			logger.Debug("job filter step",
				zap.String("name", step.name),
				zap.Int("initial", initial),
				zap.Int("dropped", initial-len(jobs)),
				zap.Int("left", len(jobs)),
			)
		}
	}

	return jobs
}

// sortByPostedDate orders jobs newest first. Dates are ISO-formatted strings,
// so lexicographic comparison is sufficient; records without a date go last.
func sortByPostedDate(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].PostedDate, jobs[j].PostedDate
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a > b
	})
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
