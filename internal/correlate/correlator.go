// Package correlate decides whether an incoming telephony event belongs to
// an in-flight conversation or starts a new one, and detects duplicate
// deliveries of the same physical call.
package correlate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"callyard.app/switchboard/common/phone"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/store"
)

// DefaultTTL is the sliding correlation window. Long enough to bridge the
// gap between leg signals of one physical call, short enough that two
// unrelated calls sharing a number pair hours apart never merge.
const DefaultTTL = 60 * time.Second

// KeyStore is the correlation-key capability surface; satisfied by
// store.CorrelationStore. Get returns store.ErrNotFound on a miss.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Persist(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Correlator resolves events to conversation ids through the key store.
type Correlator struct {
	keys KeyStore
	ttl  time.Duration
}

func NewCorrelator(keys KeyStore, ttl time.Duration) *Correlator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Correlator{keys: keys, ttl: ttl}
}

// Key derives the correlation key for an event: a hash over the normalized
// dealer number, normalized customer number and direction. Deterministic, so
// every leg signal of the same physical call computes the same key.
func Key(dealerNumber, customerNumber string, direction model.Direction) string {
	h := sha256.Sum256([]byte(
		phone.Normalize(dealerNumber) + "|" + phone.Normalize(customerNumber) + "|" + string(direction),
	))
	return "call-leg:" + hex.EncodeToString(h[:])
}

// ResolveConversation maps an event to a conversation id.
//
// A key-store hit returns the existing id and slides the key's TTL. A miss
// mints a new id; the key is registered only for inbound events — outbound
// legs are expected to attach to a conversation seeded by the inbound leg,
// never to seed one themselves.
func (c *Correlator) ResolveConversation(ctx context.Context, ev model.CallEvent) (conversationID string, isNew bool, err error) {
	key := Key(ev.DealerNumber, ev.CustomerNumber, ev.Direction)

	conversationID, err = c.keys.Get(ctx, key)
	switch {
	case err == nil:
		slog.DebugContext(ctx, "correlation key hit", "key", key)
	case errors.Is(err, store.ErrNotFound):
		isNew = true
		conversationID = uuid.NewString()
		if ev.Direction == model.DirectionIn {
			if err := c.keys.Set(ctx, key, conversationID, c.ttl); err != nil {
				return "", false, fmt.Errorf("registering correlation key: %w", err)
			}
		}
		slog.DebugContext(ctx, "correlation key miss, minted conversation", "key", key)
	default:
		return "", false, fmt.Errorf("resolving correlation key: %w", err)
	}

	// Sliding window: every leg signal keeps the key alive a little longer
	// while the call is under active negotiation.
	if err := c.keys.Expire(ctx, key, c.ttl); err != nil {
		return "", false, fmt.Errorf("refreshing correlation key: %w", err)
	}

	return conversationID, isNew, nil
}

// MarkActive handles the call_started lifecycle signal: when the key is
// still present its TTL is cleared, so it survives until the matching
// call_ended event consumes it. A missing key is not an error — started
// events may arrive out of order over a slow feed.
func (c *Correlator) MarkActive(ctx context.Context, ev model.CallEvent) error {
	key := Key(ev.DealerNumber, ev.CustomerNumber, ev.Direction)
	present, err := c.keys.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking correlation key: %w", err)
	}
	if !present {
		slog.DebugContext(ctx, "correlation key not present, nothing to persist", "key", key)
		return nil
	}
	if err := c.keys.Persist(ctx, key); err != nil {
		return fmt.Errorf("persisting correlation key: %w", err)
	}
	slog.DebugContext(ctx, "correlation key persisted", "key", key)
	return nil
}
