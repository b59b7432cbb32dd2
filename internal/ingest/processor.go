package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callyard.app/switchboard/common/logger"
	"callyard.app/switchboard/common/phone"
	"callyard.app/switchboard/internal/bus"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/correlate"
	"callyard.app/switchboard/internal/media"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/store"
)

// ConversationStore is the persistence surface the processor needs.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Save(ctx context.Context, rec *model.Record) error
	FindByCallID(ctx context.Context, source, callID string) (*model.Record, error)
}

// DealerLookup resolves a dealer id to its directory entry. A nil dealer
// with a nil error means the dealer is unknown.
type DealerLookup interface {
	Lookup(ctx context.Context, dealerID string) (*model.Dealer, error)
}

// Processor turns raw feed messages into conversation mutations and hands
// finished conversations to the pipeline topics.
type Processor struct {
	correlator    *correlate.Correlator
	deduplicator  *correlate.Deduplicator
	conversations ConversationStore
	bus           bus.Bus
	dealers       DealerLookup   // optional
	media         media.Resolver // optional
	source        string
	egressTopics  []string
	mediaURLTTL   time.Duration
}

type ProcessorConfig struct {
	Source       string
	EgressTopics []string
	MediaURLTTL  time.Duration
}

func NewProcessor(
	correlator *correlate.Correlator,
	deduplicator *correlate.Deduplicator,
	conversations ConversationStore,
	b bus.Bus,
	dealers DealerLookup,
	resolver media.Resolver,
	cfg ProcessorConfig,
) *Processor {
	return &Processor{
		correlator:    correlator,
		deduplicator:  deduplicator,
		conversations: conversations,
		bus:           b,
		dealers:       dealers,
		media:         resolver,
		source:        cfg.Source,
		egressTopics:  cfg.EgressTopics,
		mediaURLTTL:   cfg.MediaURLTTL,
	}
}

// HandleMessage dispatches one feed message by kind.
func (p *Processor) HandleMessage(ctx context.Context, msg Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msg.ID,
		Component: "switchboard.ingest.processor",
	})

	switch msg.Kind {
	case model.KindCallStarted:
		return p.handleCallStarted(ctx, msg)
	case model.KindCallEnded:
		return p.handleCallEnded(ctx, msg)
	case model.KindRecordingAvailable:
		return p.handleRecording(ctx, msg)
	default:
		return fmt.Errorf("unhandled kind %q", msg.Kind)
	}
}

func (p *Processor) handleCallStarted(ctx context.Context, msg Message) error {
	var ev model.CallEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.WarnContext(ctx, "dropping malformed call_started event", "error", err)
		return nil
	}
	return p.correlator.MarkActive(ctx, ev)
}

func (p *Processor) handleCallEnded(ctx context.Context, msg Message) error {
	var ev model.CallEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.WarnContext(ctx, "dropping malformed call_ended event", "error", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		slog.WarnContext(ctx, "dropping invalid call_ended event", "error", err)
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{CallID: &ev.CallID})

	// Duplicate delivery of a call id we already hold a leg for: no new leg,
	// just the dealer back-fill the deduplicator may have applied.
	dup, err := p.deduplicator.Dedupe(ctx, ev)
	if err != nil {
		return err
	}
	if dup != nil {
		if err := p.conversations.Save(ctx, dup); err != nil {
			return fmt.Errorf("saving deduplicated conversation: %w", err)
		}
		return p.publish(ctx, dup.UUID)
	}

	conversationID, isNew, err := p.correlator.ResolveConversation(ctx, ev)
	if err != nil {
		return err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{ConversationID: &conversationID})

	var rec *model.Record
	if isNew {
		rec = model.NewRecord(conversationID)
	} else {
		rec, err = p.conversations.Get(ctx, conversationID)
		if errors.Is(err, store.ErrNotFound) {
			// The correlation key outlived its conversation. Start fresh.
			rec = model.NewRecord(conversationID)
		} else if err != nil {
			return fmt.Errorf("loading conversation %s: %w", conversationID, err)
		}
	}

	p.appendLeg(rec, ev)
	p.attachTelephony(ctx, rec, ev)

	if err := p.conversations.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation %s: %w", conversationID, err)
	}

	slog.InfoContext(ctx, "call leg recorded",
		"direction", ev.Direction,
		"disposition", ev.State,
		"legs", len(rec.Legs),
		"new_conversation", isNew)

	return p.publish(ctx, conversationID)
}

func (p *Processor) appendLeg(rec *model.Record, ev model.CallEvent) {
	start, end, _ := ev.Times()

	customer := rec.EnsureCustomer(phone.Normalize(ev.CustomerNumber))
	agent := rec.EnsureAgent(ev.Extension, phone.Normalize(ev.DealerNumber), ev.Email, ev.AgentName())

	rec.AddLeg(model.Leg{
		Start:         start,
		End:           end,
		Duration:      ev.DurationSeconds(),
		Direction:     ev.Direction,
		Disposition:   ev.State,
		CustomerParty: customer,
		AgentParty:    agent,
		CallID:        ev.CallID,
		MediaType:     "audio/x-wav",
		Filename:      ev.CallID + ".wav",
	})
}

func (p *Processor) attachTelephony(ctx context.Context, rec *model.Record, ev model.CallEvent) {
	att := model.Attachment{
		Kind:       model.AttachmentTelephony,
		Source:     p.source,
		ReceivedAt: time.Now().UTC(),
		CallID:     ev.CallID,
		Event:      &ev,
	}

	if p.dealers != nil && ev.DealerID != "" {
		dealer, err := p.dealers.Lookup(ctx, ev.DealerID)
		if err != nil {
			// Dealer enrichment is best effort, the leg stands without it.
			slog.WarnContext(ctx, "dealer lookup failed", "error", err, "dealer_id", ev.DealerID)
		} else if dealer != nil {
			att.Dealer = dealer
		}
	}

	// One telephony attachment per leg, keyed by call id.
	for i := range rec.Attachments {
		if rec.Attachments[i].Kind == model.AttachmentTelephony && rec.Attachments[i].CallID == ev.CallID {
			rec.Attachments[i] = att
			return
		}
	}
	rec.Attachments = append(rec.Attachments, att)
}

func (p *Processor) handleRecording(ctx context.Context, msg Message) error {
	var ev model.RecordingEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.WarnContext(ctx, "dropping malformed recording event", "error", err)
		return nil
	}
	if ev.Key == "" {
		slog.WarnContext(ctx, "dropping recording event without key")
		return nil
	}

	callID := strings.TrimSuffix(ev.Key, ".wav")
	ctx = logger.WithLogFields(ctx, logger.LogFields{CallID: &callID})

	rec, err := p.conversations.FindByCallID(ctx, p.source, callID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "recording arrived for unknown call, dropping", "key", ev.Key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up conversation for recording %s: %w", ev.Key, err)
	}

	if p.media == nil {
		slog.WarnContext(ctx, "no media resolver configured, skipping recording")
		return nil
	}

	url, err := p.media.PresignGet(ctx, ev.Key, p.mediaURLTTL)
	if err != nil {
		return fmt.Errorf("presigning recording %s: %w", ev.Key, err)
	}
	checksum, err := p.media.Checksum(ctx, ev.Key)
	if err != nil {
		return fmt.Errorf("checksumming recording %s: %w", ev.Key, err)
	}

	attached := false
	for i := range rec.Legs {
		if rec.Legs[i].CallID != callID {
			continue
		}
		rec.Legs[i].URL = url
		rec.Legs[i].Signature = checksum
		rec.Legs[i].SignatureAlg = "SHA-512"
		attached = true
	}
	if !attached {
		slog.WarnContext(ctx, "conversation has no leg for recording", "key", ev.Key)
		return nil
	}

	if err := p.conversations.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving conversation %s: %w", rec.UUID, err)
	}

	slog.InfoContext(ctx, "recording attached", "conversation_id", rec.UUID)
	return p.publish(ctx, rec.UUID)
}

func (p *Processor) publish(ctx context.Context, conversationID string) error {
	topics := p.egressTopics
	if len(topics) == 0 {
		topics = []string{chain.DefaultIngressTopic}
	}
	for _, topic := range topics {
		if err := p.bus.Publish(ctx, topic, conversationID); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
	}
	return nil
}
