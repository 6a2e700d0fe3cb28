// Package auth models the authentication state the cart engine consumes.
// Token issuance happens elsewhere; this package only snapshots the current
// flag/token pair and resolves a usable bearer token, falling back to the
// durable store when the in-memory auth context has not populated yet
// (e.g. immediately after a redirect back from the payment provider).
package auth

import (
	"sheetcart/internal/localstore"
)

// Snapshot is the externally-owned authentication state at a point in time.
// The cart engine tracks consecutive snapshots to detect login, logout and
// token-change transitions.
type Snapshot struct {
	Authenticated bool
	Token         string
}

// TokenSource resolves the bearer token to use for a remote call.
type TokenSource interface {
	Token() string
}

// Static is a TokenSource returning a fixed token. Used by the CLI and by
// tests.
type Static string

func (s Static) Token() string { return string(s) }

// Fallback resolves the token from the primary source first and the durable
// store second. Storage errors degrade to "no token"; a missing token just
// means the best-effort remote call is skipped.
type Fallback struct {
	Primary TokenSource
	Store   localstore.Store
}

func (f Fallback) Token() string {
	if f.Primary != nil {
		if tok := f.Primary.Token(); tok != "" {
			return tok
		}
	}
	if f.Store != nil {
		if tok, err := f.Store.Token(); err == nil && tok != "" {
			return tok
		}
	}
	return ""
}
