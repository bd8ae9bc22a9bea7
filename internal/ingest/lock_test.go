package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestDataDirLock_Exclusive(t *testing.T) {
	// Given: one holder of the data dir lock
	dir := filepath.Join(t.TempDir(), "data")
	first := NewDataDirLock(dir)
	require.NoError(t, first.TryLock())
	assert.True(t, first.Locked())
	assert.Equal(t, filepath.Join(dir, LockFileName), first.Path())

	// When: a second lock tries the same directory
	second := NewDataDirLock(dir)
	err := second.TryLock()

	// Then: it is refused with the locked code
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeLocked, amerrors.GetCode(err))
	assert.False(t, second.Locked())

	// And: it succeeds once the first holder releases
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestDataDirLock_UnlockWithoutLock(t *testing.T) {
	l := NewDataDirLock(t.TempDir())
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}
