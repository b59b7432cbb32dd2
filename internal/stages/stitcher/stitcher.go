// Package stitcher attaches the most recent matching CRM lead to a
// conversation so downstream projections can report against it.
package stitcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"callyard.app/switchboard/common/phone"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/model"
)

// Lead is the subset of a CRM lead the conversation carries.
type Lead struct {
	ID        int64     `json:"id"`
	DealerID  string    `json:"dealer_id,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedOn time.Time `json:"created_on"`
}

// LeadLookup finds the newest lead for a customer number at a dealer, no
// older than the cutoff. A nil lead with a nil error means no match.
type LeadLookup interface {
	Find(ctx context.Context, customerNumber, dealerID string, since time.Time) (*Lead, error)
}

// Store is the conversation persistence surface this stage needs.
type Store interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Save(ctx context.Context, rec *model.Record) error
}

// Stage links conversations to CRM leads.
type Stage struct {
	conversations Store
	leads         LeadLookup
	lookback      time.Duration
}

func New(conversations Store, leads LeadLookup, lookbackDays int) *Stage {
	if lookbackDays <= 0 {
		lookbackDays = 60
	}
	return &Stage{
		conversations: conversations,
		leads:         leads,
		lookback:      time.Duration(lookbackDays) * 24 * time.Hour,
	}
}

func (s *Stage) Name() string { return "stitcher" }

func (s *Stage) DefaultOptions() chain.Options {
	return chain.Options{
		IngressTopics: []string{chain.DefaultIngressTopic},
	}
}

// Process looks up a lead for the conversation's customer and dealer. The
// conversation always continues down the chain, matched or not.
func (s *Stage) Process(ctx context.Context, conversationID string, _ chain.Options) (bool, error) {
	rec, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("stitcher load: %w", err)
	}

	if rec.AttachmentByKind(model.AttachmentLead) != nil {
		slog.DebugContext(ctx, "lead already attached")
		return true, nil
	}

	customerNumber, dealerID := lookupKeys(rec)
	if customerNumber == "" {
		slog.DebugContext(ctx, "no customer number, skipping lead lookup")
		return true, nil
	}

	lead, err := s.leads.Find(ctx, customerNumber, dealerID, time.Now().Add(-s.lookback))
	if err != nil {
		return false, fmt.Errorf("stitcher lookup %s: %w", conversationID, err)
	}
	if lead == nil {
		slog.DebugContext(ctx, "no lead matched", "customer_number", customerNumber)
		return true, nil
	}

	body, err := json.Marshal(lead)
	if err != nil {
		return false, fmt.Errorf("stitcher encode lead %d: %w", lead.ID, err)
	}

	rec.ReplaceAttachment(model.Attachment{
		Kind:       model.AttachmentLead,
		Source:     "crm",
		ReceivedAt: time.Now().UTC(),
		Body:       body,
	})

	if err := s.conversations.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("stitcher save: %w", err)
	}

	slog.InfoContext(ctx, "lead stitched", "lead_id", lead.ID)
	return true, nil
}

func lookupKeys(rec *model.Record) (customerNumber, dealerID string) {
	for _, party := range rec.Parties {
		if party.Role == model.RoleCustomer {
			customerNumber = phone.Normalize(party.Tel)
			break
		}
	}
	if att := rec.AttachmentByKind(model.AttachmentTelephony); att != nil && att.Event != nil {
		dealerID = att.Event.DealerID
	}
	return customerNumber, dealerID
}
