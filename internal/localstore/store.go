// Package localstore provides durable client-side persistence for the cart
// engine: the serialized cart mirror and the fallback bearer token.
//
// The cart is held under a single key as a JSON array. Empty is represented
// by absence of the key, not an empty serialized array, so "never loaded"
// and "loaded-and-empty" stay distinguishable only through in-memory session
// flags and never through storage state.
package localstore

import "sheetcart/internal/model"

// Store is the durable key-value surface the cart engine persists through.
//
// All operations are synchronous and side-effect free beyond the storage
// medium itself - no network access happens here. Corrupt persisted data is
// treated as empty by LoadCart, never surfaced as an error.
type Store interface {
	// LoadCart returns the previously persisted cart, or an empty cart if
	// none exists or the stored value fails to deserialize.
	LoadCart() (model.Cart, error)

	// SaveCart persists the cart, or deletes the persisted value when the
	// cart is empty.
	SaveCart(cart model.Cart) error

	// RemoveCart deletes the persisted cart value. Idempotent.
	RemoveCart() error

	// Token returns the fallback bearer token, or "" if none is stored.
	// Used when the in-memory auth context has not populated yet, e.g.
	// immediately after a redirect back from the payment provider.
	Token() (string, error)

	// SetToken stores the fallback bearer token.
	SetToken(token string) error

	// DeleteToken removes the fallback bearer token. Idempotent.
	DeleteToken() error

	// Close releases the underlying storage handle.
	Close() error
}

// Storage keys. One durable key per concern.
const (
	keyCart  = "cart"
	keyToken = "auth_token"
)
