package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/irihojaphet/kozi-chatbot/internal/cvflow"
	"github.com/irihojaphet/kozi-chatbot/internal/kozijobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.True(t, sess.Active)
	assert.Empty(t, sess.Turns)

	require.NoError(t, store.Deactivate(ctx, id))

	sess, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, sess.Active)
}

func TestGetUnknownSession(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, store.AppendTurn(context.Background(), "nope", "hi", SenderUser), ErrSessionNotFound)
	assert.ErrorIs(t, store.Deactivate(context.Background(), "nope"), ErrSessionNotFound)
}

func TestTranscriptIsAppendOnlyAndOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(ctx, id, "hello", SenderUser))
	require.NoError(t, store.AppendTurn(ctx, id, "hi there", SenderAssistant))
	require.NoError(t, store.AppendTurn(ctx, id, "find me jobs", SenderUser))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 3)

	assert.Equal(t, "hello", sess.Turns[0].Text)
	assert.Equal(t, SenderUser, sess.Turns[0].Sender)
	assert.Equal(t, "hi there", sess.Turns[1].Text)
	assert.Equal(t, SenderAssistant, sess.Turns[1].Sender)
	assert.Equal(t, "find me jobs", sess.Turns[2].Text)
}

func TestUpdateContextMergesShapes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	state := cvflow.NewState()
	require.NoError(t, store.UpdateContext(ctx, id, Context{CVGeneration: state}))

	jobs := &JobsListContext{
		Jobs:    []kozijobs.Job{{ID: "7", Title: "Cleaner"}},
		ShownAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpdateContext(ctx, id, Context{JobsList: jobs}))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)

	require.NotNil(t, sess.Context.CVGeneration, "earlier shape survives a later partial update")
	assert.Equal(t, cvflow.StepContactInfo, sess.Context.CVGeneration.CurrentStep)
	require.NotNil(t, sess.Context.JobsList)
	assert.Equal(t, "7", sess.Context.JobsList.Jobs[0].ID)
}

func TestUpdateContextReplacesShapeWholesale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateContext(ctx, id, Context{
		GeneralTopics: &GeneralTopicsContext{Topics: []string{"salaries"}},
	}))
	require.NoError(t, store.UpdateContext(ctx, id, Context{
		GeneralTopics: &GeneralTopicsContext{Topics: []string{"salaries", "interviews"}},
	}))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"salaries", "interviews"}, sess.Context.GeneralTopics.Topics)
}

func TestCVStateRoundTripsThroughContext(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	state := cvflow.NewState()
	state.Data[cvflow.StepContactInfo] = map[string]any{"full_name": "Jane"}
	state.CompletedSteps = []cvflow.Step{cvflow.StepContactInfo}
	state.CurrentStep = cvflow.StepProfessionalSummary

	require.NoError(t, store.UpdateContext(ctx, id, Context{CVGeneration: state}))

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)

	restored := sess.Context.CVGeneration
	require.NotNil(t, restored)
	assert.Equal(t, cvflow.StepProfessionalSummary, restored.CurrentStep)
	assert.Equal(t, []cvflow.Step{cvflow.StepContactInfo}, restored.CompletedSteps)
	assert.Equal(t, "Jane", restored.Data[cvflow.StepContactInfo]["full_name"])
}

func TestSaveGeneratedDocument(t *testing.T) {
	store := openTestStore(t)

	id, err := store.SaveGeneratedDocument(context.Background(), "user-1",
		map[string]any{"contact_info": map[string]any{"full_name": "Jane"}}, "kozi-cv-v1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRecordApplicationRejectsDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordApplication(ctx, "user-1", "job-7"))

	err := store.RecordApplication(ctx, "user-1", "job-7")
	assert.ErrorIs(t, err, ErrDuplicateApplication)

	// A different user may still apply to the same job.
	assert.NoError(t, store.RecordApplication(ctx, "user-2", "job-7"))
}
