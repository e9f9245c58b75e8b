package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	require.NoError(t, db.Put([]byte("p/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("p/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("q/a"), []byte("x")))

	value, err := db.Get([]byte("p/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	_, err = db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	var keys []string
	require.NoError(t, db.Iterate([]byte("p/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Equal(t, []string{"p/a", "p/b"}, keys)

	batch := new(Batch)
	batch.Put([]byte("p/c"), []byte("3"))
	batch.Delete([]byte("p/a"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, db.Write(batch))

	_, err = db.Get([]byte("p/a"))
	require.ErrorIs(t, err, ErrNotFound)
	value, err = db.Get([]byte("p/c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), value)

	require.NoError(t, db.Delete([]byte("q/a")))
	_, err = db.Get([]byte("q/a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exerciseDatabase(t, db)
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("abc")))
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	value[0] = 'z'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}
