package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mega.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
hash_algorithm = "sha256"

[http]
bind = "0.0.0.0:9090"
`), 0o600))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, "sha256", cfg.HashAlgorithm)
	require.Equal(t, "0.0.0.0:9090", cfg.HTTP.Bind)
	require.Equal(t, 5, cfg.MergeQueue.MaxRetries)
	require.Equal(t, 20, cfg.Pack.EncodeWindowEntries)
	require.Equal(t, "127.0.0.1:2222", cfg.SSH.Bind)

	_, err = cfg.Algorithm()
	require.NoError(t, err)
}

func TestLoadExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mega.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
host = "${MEGA_TEST_DB_HOST}"
`), 0o600))

	t.Setenv("MEGA_TEST_DB_HOST", "db.internal")
	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadRejectsUnsupportedHashAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mega.toml")
	require.NoError(t, os.WriteFile(path, []byte(`hash_algorithm = "md5"`), 0o600))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	_, err = cfg.Algorithm()
	require.Error(t, err)
}

func TestDecrypterRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dec, err := NewDecrypter(string(pemKey))
	require.NoError(t, err)

	plaintext := []byte("s3cr3t-password")
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, &priv.PublicKey, plaintext)
	require.NoError(t, err)
	wrapped := "ENC(" + base64.StdEncoding.EncodeToString(cipher) + ")"

	got, err := dec.Decrypt(wrapped)
	require.NoError(t, err)
	require.Equal(t, string(plaintext), got)
}

func TestDecrypterPassesThroughPlainValues(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	dec, err := NewDecrypter(string(pemKey))
	require.NoError(t, err)

	got, err := dec.Decrypt("not-encrypted")
	require.NoError(t, err)
	require.Equal(t, "not-encrypted", got)
}
