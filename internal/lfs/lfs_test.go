package lfs

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateIssuesBearerBlockVerifiableByVerifyToken(t *testing.T) {
	a := NewAuthenticator([]byte("test-secret"), time.Hour, "https://mega.example/demo")

	block, err := a.Authenticate("/demo", Download)
	require.NoError(t, err)
	require.Equal(t, "https://mega.example/demo/demo", block.Href)
	require.Equal(t, "application/vnd.git-lfs", block.Header["Accept"])
	require.Contains(t, block.Header["Authorization"], "Bearer ")

	token := block.Header["Authorization"][len("Bearer "):]
	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "/demo", claims.Path)
	require.Equal(t, Download, claims.Operation)
}

func TestClaimsMatchUploadAuthorizesDownload(t *testing.T) {
	c := &Claims{Path: "/demo", Operation: Upload}
	require.True(t, c.Match("/demo", Upload))
	require.True(t, c.Match("/demo", Download))
	require.False(t, c.Match("/other", Upload))
}

func TestClaimsMatchDownloadDoesNotAuthorizeUpload(t *testing.T) {
	c := &Claims{Path: "/demo", Operation: Download}
	require.True(t, c.Match("/demo", Download))
	require.False(t, c.Match("/demo", Upload))
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	a := NewAuthenticator([]byte("secret-a"), time.Hour, "https://mega.example")
	block, err := a.Authenticate("/demo", Upload)
	require.NoError(t, err)
	token := block.Header["Authorization"][len("Bearer "):]

	b := NewAuthenticator([]byte("secret-b"), time.Hour, "https://mega.example")
	_, err = b.VerifyToken(token)
	require.Error(t, err)
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("upload")
	require.NoError(t, err)
	require.Equal(t, Upload, op)

	_, err = ParseOperation("sideways")
	require.Error(t, err)
}

// memSignedTier is a minimal store.BytesTier fake that only needs to
// support SignedURL for Batch's purposes.
type memSignedTier struct{}

func (memSignedTier) PutStream(ctx context.Context, key string, r io.Reader, size int64) error {
	return nil
}

func (memSignedTier) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, nil
}

func (memSignedTier) GetRangeStream(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return nil, nil
}

func (memSignedTier) SignedURL(ctx context.Context, key string, method string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?method=%s", key, method), nil
}

func (memSignedTier) Exists(ctx context.Context, key string) (bool, error) { return true, nil }

func (memSignedTier) Delete(ctx context.Context, key string) error { return nil }

func TestBatchProducesOneActionPerObject(t *testing.T) {
	tier := &memSignedTier{}
	b := NewBatcher(tier, "lfs", time.Hour)

	resp, err := b.Batch(context.Background(), BatchRequest{
		Operation: Upload,
		Objects: []ObjectDescriptor{
			{Oid: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Size: 10},
			{Oid: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Size: 20},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Objects, 2)
	for _, o := range resp.Objects {
		action, ok := o.Actions["upload"]
		require.True(t, ok)
		require.Contains(t, action.Href, o.Oid[6:])
		require.Contains(t, action.Href, "method=PUT")
	}
}
