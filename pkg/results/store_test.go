package results

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRecordAndCount(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordIteration(Iteration{
			RunID:     "run-a",
			Iteration: i,
			Strategy:  "random",
			Seed:      42,
			Outcome:   "completed",
			Steps:     10 + i,
		}))
	}
	require.NoError(t, s.RecordIteration(Iteration{
		RunID:     "run-b",
		Iteration: 0,
		Strategy:  "dfs",
		Outcome:   "deadlock",
		Steps:     7,
		Error:     "deadlock: 2 operations blocked",
		TracePath: "traces/run-b_000000.trace",
	}))

	n, err := s.CountIterations("run-a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountIterations("run-b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountIterations("absent")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreListFailures(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordIteration(Iteration{
		RunID: "run", Iteration: 0, Strategy: "random", Outcome: "completed", Steps: 5,
	}))
	require.NoError(t, s.RecordIteration(Iteration{
		RunID: "run", Iteration: 1, Strategy: "random", Outcome: "failure",
		Steps: 9, Error: "panic: boom", TracePath: "t/run_000001.trace",
	}))
	require.NoError(t, s.RecordIteration(Iteration{
		RunID: "run", Iteration: 2, Strategy: "random", Outcome: "deadlock", Steps: 4,
	}))

	failures, err := s.ListFailures("run")
	require.NoError(t, err)
	require.Len(t, failures, 2)

	assert.Equal(t, 1, failures[0].Iteration)
	assert.Equal(t, "failure", failures[0].Outcome)
	assert.Equal(t, "panic: boom", failures[0].Error)
	assert.Equal(t, "t/run_000001.trace", failures[0].TracePath)
	assert.False(t, failures[0].CreatedAt.IsZero())

	assert.Equal(t, 2, failures[1].Iteration)
	assert.Equal(t, "deadlock", failures[1].Outcome)
}

func TestStoreRejectsDuplicateIteration(t *testing.T) {
	s := openTestStore(t)

	it := Iteration{RunID: "run", Iteration: 0, Strategy: "random", Outcome: "completed"}
	require.NoError(t, s.RecordIteration(it))
	assert.Error(t, s.RecordIteration(it))
}
