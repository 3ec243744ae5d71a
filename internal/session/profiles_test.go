package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileStatus(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	status, err := store.ProfileStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, status.CompletionPercentage)
	assert.Len(t, status.MissingFields, len(requiredProfileFields))

	require.NoError(t, store.SetProfileField(ctx, "user-1", "full_name", "Jane Doe"))
	require.NoError(t, store.SetProfileField(ctx, "user-1", "phone", "+250780000000"))
	require.NoError(t, store.SetProfileField(ctx, "user-1", "location", "Kigali"))

	status, err = store.ProfileStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, status.CompletionPercentage, 0.01)
	assert.NotContains(t, status.MissingFields, "full_name")
	assert.Contains(t, status.MissingFields, "education")

	// Another user's fields stay out of the count.
	status, err = store.ProfileStatus(ctx, "user-2")
	require.NoError(t, err)
	assert.Zero(t, status.CompletionPercentage)
}

func TestSetProfileFieldReplaceAndClear(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.SetProfileField(ctx, "user-1", "Location", "Kigali"))
	require.NoError(t, store.SetProfileField(ctx, "user-1", "location", "Musanze"))

	value, err := store.ProfileField(ctx, "user-1", "location")
	require.NoError(t, err)
	assert.Equal(t, "Musanze", value)

	require.NoError(t, store.SetProfileField(ctx, "user-1", "location", ""))

	value, err = store.ProfileField(ctx, "user-1", "location")
	require.NoError(t, err)
	assert.Empty(t, value)

	assert.Error(t, store.SetProfileField(ctx, "user-1", "  ", "x"))
}
