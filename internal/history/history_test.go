package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybot/internal/models"
)

func msg(role, content string) models.Message {
	return models.Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func TestStoreAppendLoadClear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, store.Append(msg(models.RoleUser, "bonjour")))
	require.NoError(t, store.Append(msg(models.RoleAssistant, "bonjour, comment puis-je aider ?")))

	loaded, err = store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, models.RoleUser, loaded[0].Role)
	assert.Equal(t, "bonjour", loaded[0].Content)

	require.NoError(t, store.Clear())
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	// Clearing an already-empty history is not an error.
	require.NoError(t, store.Clear())
}

func TestStoreToleratesCorruptHistoryFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, historyFile), []byte("{not json"), 0o644))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestInteractionLogAppendOnly(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		store.Record(models.InteractionLogEntry{
			Timestamp: time.Now().UTC(),
			Query:     fmt.Sprintf("q%d", i),
			Response:  fmt.Sprintf("r%d", i),
			Strategy:  models.StrategyGeneral,
		})
	}

	entries, err := store.Interactions()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "q0", entries[0].Query)
	assert.Equal(t, "q2", entries[2].Query)
	for _, e := range entries {
		assert.Equal(t, models.StrategyGeneral, e.Strategy)
	}
}

func TestMemorySessionIsolation(t *testing.T) {
	mem := NewMemory(10)
	mem.Append("session-a", msg(models.RoleUser, "question A"))
	mem.Append("session-b", msg(models.RoleUser, "question B"))

	a := mem.History("session-a")
	b := mem.History("session-b")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "question A", a[0].Content)
	assert.Equal(t, "question B", b[0].Content)

	mem.Clear("session-a")
	assert.Empty(t, mem.History("session-a"))
	assert.Len(t, mem.History("session-b"), 1)
}

func TestMemoryCap(t *testing.T) {
	mem := NewMemory(3)
	for i := 0; i < 5; i++ {
		mem.Append("s", msg(models.RoleUser, fmt.Sprintf("m%d", i)))
	}
	buf := mem.History("s")
	require.Len(t, buf, 3)
	assert.Equal(t, "m2", buf[0].Content)
	assert.Equal(t, "m4", buf[2].Content)
}

func TestMemoryHistoryReturnsCopy(t *testing.T) {
	mem := NewMemory(10)
	mem.Append("s", msg(models.RoleUser, "original"))
	buf := mem.History("s")
	buf[0].Content = "tampered"
	assert.Equal(t, "original", mem.History("s")[0].Content)
}
