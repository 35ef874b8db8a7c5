package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	require.Len(t, reg.Activities, 5)

	for _, taskType := range []string{
		"send-chat-message",
		"personalize-lead",
		"verify-lead-emails",
		"search-leads",
		"run-webhook-diagnostics",
	} {
		a, ok := reg.Find(taskType)
		require.True(t, ok, taskType)
		assert.NotEmpty(t, a.InputSchema, taskType)
		assert.Equal(t, "object", a.InputSchema["type"], taskType)
	}

	_, ok := reg.Find("unknown")
	assert.False(t, ok)
}

func TestLoadRegistry_RejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities":[{"id":"a","taskType":"x"},{"id":"b","taskType":"x"}]}`), 0o600))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate taskType")

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestActivityTimeouts(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	for _, a := range reg.Activities {
		d, err := a.TimeoutDuration()
		require.NoError(t, err, a.TaskType)
		assert.Positive(t, d, a.TaskType)
		assert.True(t, a.HasInputSchema(), a.TaskType)
	}

	d, err := Activity{}.TimeoutDuration()
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = Activity{Timeout: "soon"}.TimeoutDuration()
	assert.Error(t, err)
}
