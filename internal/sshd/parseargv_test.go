package sshd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommandUploadPack(t *testing.T) {
	args, err := parseCommand("git-upload-pack 'mono/zeta'")
	require.NoError(t, err)
	require.Equal(t, []string{"git-upload-pack", "mono/zeta"}, args)
}

func TestParseCommandReceivePackUnquoted(t *testing.T) {
	args, err := parseCommand("git-receive-pack mono/zeta")
	require.NoError(t, err)
	require.Equal(t, []string{"git-receive-pack", "mono/zeta"}, args)
}

func TestParseCommandLFSAuthenticate(t *testing.T) {
	args, err := parseCommand("git-lfs-authenticate 'mono/zeta' download")
	require.NoError(t, err)
	require.Equal(t, []string{"git-lfs-authenticate", "mono/zeta", "download"}, args)
}

func TestParseCommandPathWithSpaces(t *testing.T) {
	args, err := parseCommand("git-upload-pack 'mono/has space/zeta'")
	require.NoError(t, err)
	require.Equal(t, []string{"git-upload-pack", "mono/has space/zeta"}, args)
}

func TestParseCommandUnterminatedQuote(t *testing.T) {
	_, err := parseCommand("git-upload-pack 'mono/zeta")
	require.Error(t, err)
}

func TestParseCommandEmpty(t *testing.T) {
	args, err := parseCommand("")
	require.NoError(t, err)
	require.Empty(t, args)
}

func TestParseCommandCollapsesRepeatedSpaces(t *testing.T) {
	args, err := parseCommand("git-lfs-authenticate  'mono/zeta'   upload")
	require.NoError(t, err)
	require.Equal(t, []string{"git-lfs-authenticate", "mono/zeta", "upload"}, args)
}
