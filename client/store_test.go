package client_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-permit/client"
)

func sampleCreds() client.Credentials {
	return client.Credentials{
		AccessToken:  "access-token-abc",
		RefreshToken: "refresh-token-def",
		User:         client.User{ID: "usr_123", Email: "ada@example.com"},
	}
}

func TestMemoryStore(t *testing.T) {
	t.Run("load reports absence as nil, nil", func(t *testing.T) {
		store := client.NewMemoryStore()

		creds, err := store.Load("proj_1")

		assert.NoError(t, err)
		assert.Nil(t, creds)
	})

	t.Run("save and load round trip", func(t *testing.T) {
		store := client.NewMemoryStore()
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		creds, err := store.Load("proj_1")

		require.NoError(t, err)
		require.NotNil(t, creds)
		assert.Equal(t, sampleCreds(), *creds)
	})

	t.Run("projects are isolated", func(t *testing.T) {
		store := client.NewMemoryStore()
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		creds, err := store.Load("proj_2")

		assert.NoError(t, err)
		assert.Nil(t, creds)
	})

	t.Run("update rotates tokens and keeps the user", func(t *testing.T) {
		store := client.NewMemoryStore()
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		require.NoError(t, store.Update("proj_1", "access-2", "refresh-2"))

		creds, err := store.Load("proj_1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.AccessToken)
		assert.Equal(t, "refresh-2", creds.RefreshToken)
		assert.Equal(t, "usr_123", creds.User.ID)
	})

	t.Run("update without stored credentials fails", func(t *testing.T) {
		store := client.NewMemoryStore()

		err := store.Update("proj_1", "a", "r")

		assert.ErrorIs(t, err, client.ErrNoStoredCredentials)
	})

	t.Run("clear is idempotent", func(t *testing.T) {
		store := client.NewMemoryStore()
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		assert.NoError(t, store.Clear("proj_1"))
		assert.NoError(t, store.Clear("proj_1"))

		creds, err := store.Load("proj_1")
		assert.NoError(t, err)
		assert.Nil(t, creds)
	})
}

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestFileStore(t *testing.T) {
	t.Run("rejects a short key", func(t *testing.T) {
		store, err := client.NewFileStore(t.TempDir(), []byte("too-short"))

		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("round trips through disk", func(t *testing.T) {
		store, err := client.NewFileStore(t.TempDir(), testKey())
		require.NoError(t, err)

		require.NoError(t, store.Save("proj_1", sampleCreds()))

		creds, err := store.Load("proj_1")
		require.NoError(t, err)
		require.NotNil(t, creds)
		assert.Equal(t, sampleCreds(), *creds)
	})

	t.Run("tokens never hit the disk in the clear", func(t *testing.T) {
		dir := t.TempDir()
		store, err := client.NewFileStore(dir, testKey())
		require.NoError(t, err)
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		require.NoError(t, err)
		assert.False(t, bytes.Contains(raw, []byte("access-token-abc")))
		assert.False(t, bytes.Contains(raw, []byte("refresh-token-def")))
		assert.False(t, bytes.Contains(raw, []byte("ada@example.com")))
	})

	t.Run("load reports absence as nil, nil", func(t *testing.T) {
		store, err := client.NewFileStore(t.TempDir(), testKey())
		require.NoError(t, err)

		creds, err := store.Load("proj_never_saved")

		assert.NoError(t, err)
		assert.Nil(t, creds)
	})

	t.Run("detects a tampered file", func(t *testing.T) {
		dir := t.TempDir()
		store, err := client.NewFileStore(dir, testKey())
		require.NoError(t, err)
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		path := filepath.Join(dir, entries[0].Name())
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xff
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		_, err = store.Load("proj_1")
		assert.Error(t, err)
	})

	t.Run("credentials are bound to their project id", func(t *testing.T) {
		dir := t.TempDir()
		store, err := client.NewFileStore(dir, testKey())
		require.NoError(t, err)
		require.NoError(t, store.Save("proj_1", sampleCreds()))

		// renaming the file to another project must not let its
		// credentials load under that project
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		src := filepath.Join(dir, entries[0].Name())
		dst := filepath.Join(dir, "permit_proj_2.cred")
		require.NoError(t, os.Rename(src, dst))

		_, err = store.Load("proj_2")
		assert.Error(t, err)
	})

	t.Run("update and clear", func(t *testing.T) {
		store, err := client.NewFileStore(t.TempDir(), testKey())
		require.NoError(t, err)

		assert.ErrorIs(t, store.Update("proj_1", "a", "r"), client.ErrNoStoredCredentials)

		require.NoError(t, store.Save("proj_1", sampleCreds()))
		require.NoError(t, store.Update("proj_1", "access-2", "refresh-2"))

		creds, err := store.Load("proj_1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", creds.AccessToken)
		assert.Equal(t, "usr_123", creds.User.ID)

		assert.NoError(t, store.Clear("proj_1"))
		assert.NoError(t, store.Clear("proj_1"))
		creds, err = store.Load("proj_1")
		assert.NoError(t, err)
		assert.Nil(t, creds)
	})
}
