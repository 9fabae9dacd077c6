package runtime

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceAppendAssignsIndexes(t *testing.T) {
	tr := NewTrace()
	tr.appendOperation(PointCreate, 1)
	tr.appendBoolean(true)
	tr.appendOperation(PointJoin, 2)
	tr.appendInteger(42)

	require.Equal(t, 4, tr.Len())
	for i := 0; i < tr.Len(); i++ {
		assert.Equal(t, i, tr.Step(i).Index)
	}
	assert.Equal(t, []uint64{1, 2}, tr.OperationIDs())
	assert.Equal(t, StepBoolean, tr.Step(1).Kind)
	assert.Equal(t, int64(1), tr.Step(1).Value)
	assert.Equal(t, int64(42), tr.Step(3).Value)
}

func TestTraceSaveLoad(t *testing.T) {
	tr := NewTrace()
	tr.appendOperation(PointDefault, 1)
	tr.appendOperation(PointYield, 2)
	tr.appendBoolean(false)
	tr.appendOperation(PointComplete, 1)

	path := filepath.Join(t.TempDir(), "run.trace")
	require.NoError(t, SaveTrace(path, tr))

	loaded, err := LoadTrace(path)
	require.NoError(t, err)
	assert.Equal(t, tr.Steps(), loaded.Steps())
}

func TestLoadTraceMissingFile(t *testing.T) {
	_, err := LoadTrace(filepath.Join(t.TempDir(), "absent.trace"))
	assert.Error(t, err)
}
