package localstore_test

import (
	"testing"

	internalerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/localstore"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	fileStore, err := localstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]localstore.Store{
		"file":   fileStore,
		"memory": localstore.NewInMemoryStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get("legacy_access_token")
			require.ErrorIs(t, err, internalerrors.ErrKeyNotFound)

			require.NoError(t, store.Set("legacy_access_token", "abc"))
			require.NoError(t, store.Set("legacy_refresh_token", "def"))

			value, err := store.Get("legacy_access_token")
			require.NoError(t, err)
			require.Equal(t, "abc", value)

			// Overwrite
			require.NoError(t, store.Set("legacy_access_token", "xyz"))
			value, err = store.Get("legacy_access_token")
			require.NoError(t, err)
			require.Equal(t, "xyz", value)

			require.NoError(t, store.Delete("legacy_access_token"))
			_, err = store.Get("legacy_access_token")
			require.ErrorIs(t, err, internalerrors.ErrKeyNotFound)

			// Deleting a missing key is not an error
			require.NoError(t, store.Delete("legacy_access_token"))
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := localstore.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set("legacy_access_token", "abc"))

	second, err := localstore.NewFileStore(dir)
	require.NoError(t, err)
	value, err := second.Get("legacy_access_token")
	require.NoError(t, err)
	require.Equal(t, "abc", value)
}
