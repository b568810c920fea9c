package httpd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega-core/internal/buck"
	"github.com/mega-forge/mega-core/internal/object"
)

func TestBuckManifestEntryDTOModeOrDefaultEmpty(t *testing.T) {
	e := buckManifestEntryDTO{Path: "src/main.go"}
	require.Equal(t, buck.DefaultMode, e.modeOrDefault())
}

func TestBuckManifestEntryDTOModeOrDefaultExplicit(t *testing.T) {
	e := buckManifestEntryDTO{Path: "run.sh", Mode: "100755"}
	require.Equal(t, object.ModeExecutable, e.modeOrDefault())
}

func TestBuckManifestEntryDTOModeOrDefaultInvalidFallsBack(t *testing.T) {
	e := buckManifestEntryDTO{Path: "weird", Mode: "not-an-octal"}
	require.Equal(t, buck.DefaultMode, e.modeOrDefault())
}

func TestBuckManifestEntryDTOModeOrDefaultUnknownModeFallsBack(t *testing.T) {
	e := buckManifestEntryDTO{Path: "weird", Mode: "777"}
	require.Equal(t, buck.DefaultMode, e.modeOrDefault())
}
