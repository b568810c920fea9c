package sshd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testAuthorizedKeyLine = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFOaScq2CosXa6LNqomJ0CIdFrBWcp/p1r72K/rWwDgH test@mega"

func TestLoadAuthorizedKeysParsesLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authorized_keys")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\n"+testAuthorizedKeyLine+"\n"), 0o600))

	keys, err := loadAuthorizedKeys(path)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestLoadAuthorizedKeysRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authorized_keys")
	require.NoError(t, os.WriteFile(path, []byte("not-a-valid-key-line\n"), 0o600))

	_, err := loadAuthorizedKeys(path)
	require.Error(t, err)
}

func TestLoadAuthorizedKeysMissingFile(t *testing.T) {
	_, err := loadAuthorizedKeys(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestLoadAuthorizedKeysEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authorized_keys")
	require.NoError(t, os.WriteFile(path, []byte("# nothing but comments\n"), 0o600))

	keys, err := loadAuthorizedKeys(path)
	require.NoError(t, err)
	require.Empty(t, keys)
}
