// Package storage provides the durable key→JSON store backing carts, pending
// orders and session bookkeeping. Keys are opaque strings; values are raw JSON
// documents with no schema enforcement.
package storage

import (
	"context"
	"errors"
)

// Well-known key prefixes, mirroring the storage layout the UI relies on.
const (
	KeyCart             = "cart"
	KeyPendingOrder     = "pendingOrder"
	KeyPaymentStartTime = "paymentStartTime"
	KeyGatewayOrderID   = "currentGatewayOrderId"
	KeyUser             = "user"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is a persistent key-value store of JSON documents.
type Store interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// SessionKey namespaces a well-known key by session id.
func SessionKey(prefix, sessionID string) string {
	return prefix + ":" + sessionID
}
