package httpd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func TestRepoPathTrimsSlashes(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/mono/zeta.git/info/refs", nil)
	mux.SetURLVars(r, map[string]string{"path": "/mono/zeta/"})
	require.Equal(t, "mono/zeta", repoPath(r))
}

func TestRepoPathEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	mux.SetURLVars(r, map[string]string{"path": ""})
	require.Equal(t, "", repoPath(r))
}
