// Package lfs implements spec §4.M's LFS handoff: a batch endpoint that
// turns a manifest of object ids into presigned bytes-tier URLs, and the
// SSH git-lfs-authenticate handshake that hands a client a short-lived
// HTTPS bearer token scoped to one path and one operation.
//
// Grounded on pkg/serve/httpserver/bearer.go's GenerateJWT/ParseJWT for
// the claims shape and HS256 signing convention.
package lfs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mega-forge/mega-core/internal/mega"
	"github.com/mega-forge/mega-core/internal/store"
)

// Operation is the LFS transfer direction, matching the two strings
// git-lfs-authenticate and the batch endpoint both accept.
type Operation string

const (
	Download Operation = "download"
	Upload   Operation = "upload"
)

func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case Download, Upload:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("lfs: unknown operation %q", s)
	}
}

// Claims is the bearer token payload bound to one repository path and
// one operation, mirroring BearerMD's path/operation/RegisteredClaims
// shape.
type Claims struct {
	Path      string    `json:"path"`
	Operation Operation `json:"operation"`
	jwt.RegisteredClaims
}

// Match reports whether claims issued for c.Operation authorize op;
// an Upload grant also authorizes Download, the direction BearerMD's
// Match method allows for its analogous UPLOAD/DOWNLOAD pair.
func (c *Claims) Match(path string, op Operation) bool {
	if c.Path != path {
		return false
	}
	if c.Operation == Upload {
		return true
	}
	return c.Operation == op
}

// Authenticator issues and verifies LFS bearer tokens signed with a
// shared server secret, and formats the JSON bearer block
// git-lfs-authenticate returns.
type Authenticator struct {
	secret    []byte
	ttl       time.Duration
	httpsBase string
}

func NewAuthenticator(secret []byte, ttl time.Duration, httpsBase string) *Authenticator {
	return &Authenticator{secret: secret, ttl: ttl, httpsBase: httpsBase}
}

// BearerBlock is the JSON document git-lfs-authenticate returns (spec
// §9 Scenario 6).
type BearerBlock struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
	// ExpiresAt is RFC3339, matching spec §9's worked example.
	ExpiresAt string `json:"expires_at"`
}

// Authenticate implements the SSH git-lfs-authenticate '<path>' {upload|download}
// handshake: issue a token scoped to path+op and wrap it in the bearer
// block the client will replay to the HTTP batch endpoint.
func (a *Authenticator) Authenticate(path string, op Operation) (*BearerBlock, error) {
	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		Path:      path,
		Operation: op,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("lfs: sign token: %w", err)
	}
	return &BearerBlock{
		Href: a.httpsBase + path,
		Header: map[string]string{
			"Accept":        "application/vnd.git-lfs",
			"Authorization": "Bearer " + signed,
		},
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// VerifyToken parses and validates a bearer token from the batch
// endpoint's Authorization header, returning the bound claims.
func (a *Authenticator) VerifyToken(bearerToken string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(bearerToken, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, &mega.Unauthorized{Subject: "lfs client", Action: string(claims.Operation), Path: claims.Path}
		default:
			return nil, &mega.Unauthorized{Subject: "lfs client", Action: "authenticate", Path: claims.Path}
		}
	}
	return claims, nil
}

// ObjectDescriptor is one entry of a batch request's "objects" array.
type ObjectDescriptor struct {
	Oid  string `json:"oid"`
	Size int64  `json:"size"`
}

// BatchRequest is the POST .../info/lfs/objects/batch request body.
type BatchRequest struct {
	Operation Operation          `json:"operation"`
	Objects   []ObjectDescriptor `json:"objects"`
}

// BatchAction is one transfer action (upload or download) nested under
// a batch response object.
type BatchAction struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresAt string            `json:"expires_at"`
}

// BatchResponseObject mirrors the LFS batch API's per-object response.
type BatchResponseObject struct {
	Oid     string                 `json:"oid"`
	Size    int64                  `json:"size"`
	Actions map[string]BatchAction `json:"actions"`
}

// BatchResponse is the POST .../info/lfs/objects/batch response body.
type BatchResponse struct {
	Objects []BatchResponseObject `json:"objects"`
}

// Batcher issues presigned bytes-tier URLs for an LFS batch request.
type Batcher struct {
	tier      store.BytesTier
	namespace string
	ttl       time.Duration
}

func NewBatcher(tier store.BytesTier, namespace string, ttl time.Duration) *Batcher {
	return &Batcher{tier: tier, namespace: namespace, ttl: ttl}
}

// Batch implements spec §4.M's batch endpoint: for every requested
// object, produce a presigned PUT (upload) or GET (download) URL from
// the bytes tier keyed by LFS oid (sharded the same way blob content
// is, per store.BlobKey).
func (b *Batcher) Batch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	method := "GET"
	if req.Operation == Upload {
		method = "PUT"
	}
	expiresAt := time.Now().Add(b.ttl).UTC().Format(time.RFC3339)

	resp := &BatchResponse{Objects: make([]BatchResponseObject, 0, len(req.Objects))}
	for _, o := range req.Objects {
		key := store.BlobKey(b.namespace, o.Oid)
		url, err := b.tier.SignedURL(ctx, key, method, b.ttl)
		if err != nil {
			return nil, fmt.Errorf("lfs: sign url for %q: %w", o.Oid, err)
		}
		resp.Objects = append(resp.Objects, BatchResponseObject{
			Oid:  o.Oid,
			Size: o.Size,
			Actions: map[string]BatchAction{
				string(req.Operation): {
					Href:      url,
					ExpiresAt: expiresAt,
				},
			},
		})
	}
	return resp, nil
}
