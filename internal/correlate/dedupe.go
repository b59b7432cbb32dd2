package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"callyard.app/switchboard/common/phone"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/store"
)

// ConversationFinder is the indexed-lookup capability the deduplicator
// needs; satisfied by store.ConversationStore.
type ConversationFinder interface {
	FindByCallID(ctx context.Context, source, callID string) (*model.Record, error)
}

// Deduplicator detects duplicate deliveries of the same physical call,
// typically caused by an agent running multiple concurrent client sessions.
type Deduplicator struct {
	conversations ConversationFinder
	source        string
}

func NewDeduplicator(conversations ConversationFinder, source string) *Deduplicator {
	return &Deduplicator{conversations: conversations, source: source}
}

// Dedupe returns the existing conversation when the event's call id is
// already attached to one, nil when it is not. The caller must not create a
// second leg for a returned record.
//
// A lookup failure is returned as an error, never as "not a duplicate":
// falling through on a flaky store would double-create conversations under
// retry.
//
// One mutation happens on the duplicate path: an outbound call whose dealer
// number was absent on first delivery gets it back-filled from the
// redelivery, onto both the agent party and the telephony attachment. The
// back-fill is idempotent; a conflicting value is overwritten (last write
// wins) with a warning.
func (d *Deduplicator) Dedupe(ctx context.Context, ev model.CallEvent) (*model.Record, error) {
	rec, err := d.conversations.FindByCallID(ctx, d.source, ev.CallID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dedupe lookup %s: %w", ev.CallID, err)
	}

	slog.InfoContext(ctx, "duplicate call id found, reusing conversation",
		"conversation_id", rec.UUID)

	if ev.Direction == model.DirectionOut && ev.DealerNumber != "" {
		d.backfillDealer(ctx, rec, ev)
	}

	return rec, nil
}

func (d *Deduplicator) backfillDealer(ctx context.Context, rec *model.Record, ev model.CallEvent) {
	normalized := phone.Normalize(ev.DealerNumber)

	if i := rec.PartyByExtension(ev.Extension); i >= 0 {
		if cur := rec.Parties[i].Tel; cur != "" && cur != normalized {
			slog.WarnContext(ctx, "dealer number back-fill conflict, overwriting",
				"existing", cur, "incoming", normalized)
		}
		rec.Parties[i].Tel = normalized
	}

	if att := rec.AttachmentByKind(model.AttachmentTelephony); att != nil && att.Event != nil {
		att.Event.DealerNumber = ev.DealerNumber
		att.Event.DealerName = ev.DealerName
	}
}
