// Package store holds the Redis-backed persistence for conversation records
// and call-leg correlation keys. Conversations live as RedisJSON documents
// with a RediSearch index over their attachment tags; correlation keys are
// plain string keys with native TTL semantics.
package store

import "errors"

// ErrNotFound is returned when a lookup matches nothing. Callers must
// distinguish it from transport errors: a store that is unreachable is NOT
// "not found".
var ErrNotFound = errors.New("not found")
