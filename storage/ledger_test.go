package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "data", "runs.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func testRun(id, tag string, started time.Time) Run {
	return Run{
		ID:         id,
		Tag:        tag,
		Kind:       "samples",
		Pass:       "nosigs",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Found:      12,
		NotFound:   3,
		BulkPath:   "out_estack/hash_data_estack_" + tag + "_nosigs.json",
		PrettyPath: "out_pretty/hash_data_pretty_" + tag + "_nosigs.json",
	}
}

func TestOpenLedger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "runs.db")
	ledger, err := OpenLedger(path, nil)
	require.NoError(t, err)
	defer ledger.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, ledger.Path())
}

func TestOpenLedger_InvalidPath(t *testing.T) {
	_, err := OpenLedger("", nil)
	assert.Error(t, err)

	_, err = OpenLedger("runs\x00.db", nil)
	assert.Error(t, err)
}

func TestLedger_InMemory(t *testing.T) {
	ledger, err := OpenLedger(":memory:", nil)
	require.NoError(t, err)
	defer ledger.Close()

	require.NoError(t, ledger.Record(context.Background(), testRun("1", "mem", time.Now())))
	runs, err := ledger.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestLedger_RecordAndList(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()
	base := time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Record(ctx, testRun("a", "first", base)))
	require.NoError(t, ledger.Record(ctx, testRun("b", "second", base.Add(time.Hour))))
	stalled := testRun("c", "third", base.Add(2*time.Hour))
	stalled.Stalled = true
	require.NoError(t, ledger.Record(ctx, stalled))

	runs, err := ledger.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "third", runs[0].Tag, "newest first")
	assert.True(t, runs[0].Stalled)
	assert.Equal(t, "first", runs[2].Tag)
	assert.True(t, base.Equal(runs[2].StartedAt))
	assert.Equal(t, 90*time.Second, runs[2].Duration())
	assert.Equal(t, 12, runs[2].Found)
	assert.Equal(t, 3, runs[2].NotFound)
	assert.Equal(t, "out_estack/hash_data_estack_first_nosigs.json", runs[2].BulkPath)

	limited, err := ledger.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedger_RecordReplacesByID(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()
	run := testRun("a", "tag", time.Now())
	require.NoError(t, ledger.Record(ctx, run))

	run.Found = 99
	require.NoError(t, ledger.Record(ctx, run))

	runs, err := ledger.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 99, runs[0].Found)
}

func TestLedger_RecordValidation(t *testing.T) {
	ledger := setupTestLedger(t)
	assert.Error(t, ledger.Record(context.Background(), Run{Tag: "x"}))
	assert.Error(t, ledger.Record(context.Background(), Run{ID: "x"}))
}

func TestLedger_Latest(t *testing.T) {
	ledger := setupTestLedger(t)
	ctx := context.Background()
	base := time.Date(2020, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Record(ctx, testRun("a", "tag", base)))
	sigs := testRun("b", "tag", base.Add(time.Hour))
	sigs.Pass = "sigs"
	require.NoError(t, ledger.Record(ctx, sigs))

	latest, err := ledger.Latest(ctx, "tag")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)
	assert.Equal(t, "sigs", latest.Pass)

	_, err = ledger.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLedger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ledger, err := OpenLedger(path, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Record(context.Background(), testRun("a", "kept", time.Now())))
	require.NoError(t, ledger.Close())

	ledger, err = OpenLedger(path, nil)
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].Tag)
}
