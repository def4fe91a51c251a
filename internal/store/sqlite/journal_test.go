package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fixinit/internal/fixmsg"
	"github.com/koltyakov/fixinit/internal/fixtest"
)

func openMemory(t *testing.T) *Journal {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	j, err := Open("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	j := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	first, err := j.Append(ctx, Entry{Router: "orders", Session: "CLIENT->BROKER", MsgType: "8", Raw: "35=8|", ReceivedAt: base})
	require.NoError(t, err)
	second, err := j.Append(ctx, Entry{Router: "orders", Session: "CLIENT->BROKER", MsgType: "5", Raw: "35=5|", ReceivedAt: base.Add(time.Second)})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, "5", entries[0].MsgType)
	assert.Equal(t, "35=8|", entries[1].Raw)
	assert.True(t, base.Equal(entries[1].ReceivedAt), "got %v", entries[1].ReceivedAt)

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendDefaultsReceivedAt(t *testing.T) {
	t.Parallel()

	j := openMemory(t)
	e, err := j.Append(context.Background(), Entry{Router: "r", MsgType: "0", Raw: "35=0|"})
	require.NoError(t, err)
	assert.False(t, e.ReceivedAt.IsZero())
	assert.Equal(t, time.UTC, e.ReceivedAt.Location())
}

func TestCountByType(t *testing.T) {
	t.Parallel()

	j := openMemory(t)
	ctx := context.Background()
	for _, mt := range []string{"8", "8", "0", "5", "8"} {
		_, err := j.Append(ctx, Entry{Router: "r", MsgType: mt, Raw: "35=" + mt})
		require.NoError(t, err)
	}

	counts, err := j.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"8": 3, "0": 1, "5": 1}, counts)
}

func TestHandlerJournalsMessage(t *testing.T) {
	t.Parallel()

	j := openMemory(t)
	msg := fixtest.Message("8", fixmsg.TagText, "filled")
	msg.Header.SetString(fixmsg.TagSenderCompID, "BROKER")
	msg.Header.SetString(fixmsg.TagTargetCompID, "CLIENT")

	require.NoError(t, Handler(j, "orders").HandleMessage(context.Background(), msg))

	entries, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders", entries[0].Router)
	assert.Equal(t, "BROKER->CLIENT", entries[0].Session)
	assert.Equal(t, "8", entries[0].MsgType)
	assert.Contains(t, entries[0].Raw, "58=filled")
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "path", "journal.db")
	j, err := Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}
