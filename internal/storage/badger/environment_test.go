package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/common"
)

func newTestEnvironment(t *testing.T) *Environment {
	t.Helper()
	logger := arbor.NewLogger()
	cfg := &common.BadgerConfig{Path: t.TempDir()}
	env, err := Open(logger, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestEnvironmentPutGetCommit(t *testing.T) {
	env := newTestEnvironment(t)

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, txn.Put(DBWord, []byte("hello"), []byte("world")))
	require.NoError(t, txn.Commit())

	read := env.ReadTxn()
	defer read.Abort()
	val, err := read.Get(DBWord, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), val)
}

func TestEnvironmentGetMissingKeyReturnsNil(t *testing.T) {
	env := newTestEnvironment(t)

	read := env.ReadTxn()
	defer read.Abort()
	val, err := read.Get(DBWord, []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestEnvironmentDatabasesDoNotCollide(t *testing.T) {
	env := newTestEnvironment(t)

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, txn.Put(DBWord, []byte("x"), []byte("from-word")))
	require.NoError(t, txn.Put(DBWordPrefix, []byte("x"), []byte("from-prefix")))
	require.NoError(t, txn.Commit())

	read := env.ReadTxn()
	defer read.Abort()
	v1, _ := read.Get(DBWord, []byte("x"))
	v2, _ := read.Get(DBWordPrefix, []byte("x"))
	assert.Equal(t, "from-word", string(v1))
	assert.Equal(t, "from-prefix", string(v2))
}

func TestEnvironmentAbortDiscardsWrites(t *testing.T) {
	env := newTestEnvironment(t)

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, txn.Put(DBWord, []byte("temp"), []byte("value")))
	txn.Abort()

	read := env.ReadTxn()
	defer read.Abort()
	val, err := read.Get(DBWord, []byte("temp"))
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestEnvironmentIteratePrefix(t *testing.T) {
	env := newTestEnvironment(t)

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, txn.Put(DBDocidWordPositions, []byte{0, 0, 0, 1, 'a'}, []byte("1a")))
	require.NoError(t, txn.Put(DBDocidWordPositions, []byte{0, 0, 0, 1, 'b'}, []byte("1b")))
	require.NoError(t, txn.Put(DBDocidWordPositions, []byte{0, 0, 0, 2, 'a'}, []byte("2a")))
	require.NoError(t, txn.Commit())

	read := env.ReadTxn()
	defer read.Abort()

	var got []string
	err = read.Iterate(DBDocidWordPositions, IterOptions{Prefix: []byte{0, 0, 0, 1}}, func(key, value []byte) (bool, error) {
		got = append(got, string(value))
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1a", "1b"}, got)
}

func TestEnvironmentPutOnReadTxnFails(t *testing.T) {
	env := newTestEnvironment(t)

	read := env.ReadTxn()
	defer read.Abort()
	err := read.Put(DBWord, []byte("x"), []byte("y"))
	assert.Error(t, err)
}

func TestEnvironmentCloseIsIdempotent(t *testing.T) {
	logger := arbor.NewLogger()
	cfg := &common.BadgerConfig{Path: t.TempDir()}
	env, err := Open(logger, cfg)
	require.NoError(t, err)
	require.NoError(t, env.Close())
	require.NoError(t, env.Close())
}

func TestEnvironmentResetOnStartup(t *testing.T) {
	logger := arbor.NewLogger()
	dir := t.TempDir()
	cfg := &common.BadgerConfig{Path: dir}

	env, err := Open(logger, cfg)
	require.NoError(t, err)
	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, txn.Put(DBWord, []byte("a"), []byte("b")))
	require.NoError(t, txn.Commit())
	require.NoError(t, env.Close())

	cfg.ResetOnStartup = true
	env2, err := Open(logger, cfg)
	require.NoError(t, err)
	defer env2.Close()

	read := env2.ReadTxn()
	defer read.Abort()
	val, err := read.Get(DBWord, []byte("a"))
	require.NoError(t, err)
	assert.Nil(t, val)
}
