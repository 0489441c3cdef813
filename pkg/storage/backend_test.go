package storage

import (
	"path/filepath"
	"testing"

	"historytree/pkg/common"
	"historytree/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factories(t *testing.T) map[string]Factory {
	t.Helper()
	mem, err := Open(config.StorageConfig{Backend: config.BackendMemory, BTreeDegree: 4})
	require.NoError(t, err)
	lite, err := Open(config.StorageConfig{Backend: config.BackendSQLite})
	require.NoError(t, err)
	t.Cleanup(func() {
		mem.Close()
		lite.Close()
	})
	return map[string]Factory{"memory": mem, "sqlite": lite}
}

func TestBackendWriteReadTruncate(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			b, err := f.New("doc-a")
			require.NoError(t, err)
			defer b.Close()

			for i, v := range []string{"root", "assets", "syntax", "hello"} {
				require.NoError(t, b.Write(common.Index(i), []byte(v)))
			}
			require.NoError(t, b.Write(1, []byte("assets!")))

			v, ok := b.Read(1)
			require.True(t, ok)
			assert.Equal(t, "assets!", string(v))

			require.NoError(t, b.TruncateAfter(1))
			_, ok = b.Read(2)
			assert.False(t, ok)

			all, err := b.LoadAll()
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, common.Index(0), all[0].Key)
			assert.Equal(t, "root", string(all[0].Value))
			assert.Equal(t, common.Index(1), all[1].Key)
		})
	}
}

func TestWriteNextReplacesUndoneFuture(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			b, err := f.New("doc-next")
			require.NoError(t, err)
			defer b.Close()

			for i, v := range []string{"root", "assets", "syntax", "hello"} {
				require.NoError(t, b.Write(common.Index(i), []byte(v)))
			}
			require.NoError(t, b.WriteNext(1, []byte("notes")))

			all, err := b.LoadAll()
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, common.Index(2), all[2].Key)
			assert.Equal(t, "notes", string(all[2].Value))
		})
	}
}

func TestSQLiteWriteNextRollsBackOnError(t *testing.T) {
	f, err := OpenSQLite("")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON payload
		WHEN NEW.value = CAST('boom' AS BLOB)
		BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	require.NoError(t, err)

	b, err := f.New("doc")
	require.NoError(t, err)
	for i, v := range []string{"root", "assets", "syntax"} {
		require.NoError(t, b.Write(common.Index(i), []byte(v)))
	}

	require.Error(t, b.WriteNext(0, []byte("boom")))

	all, err := b.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "assets", string(all[1].Value))
	assert.Equal(t, "syntax", string(all[2].Value))
}

func TestSQLiteDocumentsAreIsolated(t *testing.T) {
	f, err := OpenSQLite(filepath.Join(t.TempDir(), "payload.db"))
	require.NoError(t, err)
	defer f.Close()

	a, err := f.New("a")
	require.NoError(t, err)
	b, err := f.New("b")
	require.NoError(t, err)

	require.NoError(t, a.Write(1, []byte("from a")))
	require.NoError(t, b.Write(1, []byte("from b")))
	require.NoError(t, a.TruncateAfter(0))

	_, ok := a.Read(1)
	assert.False(t, ok)
	v, ok := b.Read(1)
	require.True(t, ok)
	assert.Equal(t, "from b", string(v))

	require.NoError(t, b.Close())
	_, ok = b.Read(1)
	assert.False(t, ok)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(config.StorageConfig{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
