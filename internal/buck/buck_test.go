package buck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePathRejectsEmpty(t *testing.T) {
	require.Error(t, ValidatePath(""))
}

func TestValidatePathRejectsAbsolute(t *testing.T) {
	require.Error(t, ValidatePath("/etc/passwd"))
}

func TestValidatePathRejectsDotDot(t *testing.T) {
	require.Error(t, ValidatePath("src/../../etc/passwd"))
}

func TestValidatePathRejectsOverLength(t *testing.T) {
	require.Error(t, ValidatePath(strings.Repeat("a", 4097)))
}

func TestValidatePathAcceptsOrdinaryRelativePath(t *testing.T) {
	require.NoError(t, ValidatePath("src/pkg/lib.go"))
}

func TestParseManifestHashSHA1(t *testing.T) {
	h, err := ParseManifestHash("sha1:" + strings.Repeat("a", 40))
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 40), h.String())
}

func TestParseManifestHashRejectsWrongAlgorithm(t *testing.T) {
	_, err := ParseManifestHash("sha256:" + strings.Repeat("a", 64))
	require.Error(t, err)
}

func TestParseManifestHashRejectsMalformed(t *testing.T) {
	_, err := ParseManifestHash("not-a-hash")
	require.Error(t, err)
}

func TestParseManifestHashRejectsUnknownAlgorithm(t *testing.T) {
	_, err := ParseManifestHash("md5:" + strings.Repeat("a", 32))
	require.Error(t, err)
}
