package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsKeysOutsideNamespace(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)

	for _, key := range []string{"", "   ", "/absolute/path", "../escape", "giveaway/../escape", "giveaway/", "other/api_token"} {
		t.Run(key, func(t *testing.T) {
			err := store.Put(context.Background(), key, "value")
			require.ErrorIs(t, err, domain.ErrInvalidSecretKey)
		})
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStorePutGetNormalizesTokenAndKeepsFilePrivate(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "secrets")
	store := NewStore(root)

	require.NoError(t, store.Put(context.Background(), "giveaway/api_token", "  top-secret\r\n"))

	got, err := store.Get(context.Background(), "giveaway/api_token")
	require.NoError(t, err)
	assert.Equal(t, "top-secret", got)

	info, err := os.Stat(filepath.Join(root, "api_token"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(tokenMode), info.Mode().Perm())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, store.Put(context.Background(), "giveaway/api_token", "rotated"))
	got, err = store.Get(context.Background(), "giveaway/api_token")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)
}

func TestStorePutRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	require.ErrorIs(t, store.Put(context.Background(), "giveaway/api_token", "   "), domain.ErrInvalidToken)
	require.ErrorIs(t, store.Put(context.Background(), "giveaway/api_token", "two words"), domain.ErrInvalidToken)
}

func TestStoreGetRefusesTokenReadableByOthers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "api_token"), []byte("leaky"), 0o644))
	require.NoError(t, os.Chmod(filepath.Join(root, "api_token"), 0o644))

	_, err := NewStore(root).Get(context.Background(), "giveaway/api_token")
	require.ErrorIs(t, err, ErrInsecurePermissions)
	assert.ErrorContains(t, err, "chmod 600")
}

func TestStoreGetMissingOrBlankIsNotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)

	_, err := store.Get(context.Background(), "giveaway/api_token")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(root, "api_token"), []byte("\n"), tokenMode))
	_, err = store.Get(context.Background(), "giveaway/api_token")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, store.Put(context.Background(), "giveaway/api_token", "token"))

	require.NoError(t, store.Delete(context.Background(), "giveaway/api_token"))
	assert.NoFileExists(t, filepath.Join(root, "api_token"))
	require.NoError(t, store.Delete(context.Background(), "giveaway/api_token"))
}
