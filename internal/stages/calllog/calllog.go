// Package calllog projects a conversation into the call-log shape the
// reporting side consumes: per-leg outcomes, the conversation-level
// disposition, and the main agent.
package calllog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"callyard.app/switchboard/common/phone"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/disposition"
	"callyard.app/switchboard/internal/model"
)

// Store is the conversation persistence surface this stage needs.
type Store interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	Save(ctx context.Context, rec *model.Record) error
}

// Stage computes the call_log projection attachment.
type Stage struct {
	conversations Store
}

func New(conversations Store) *Stage {
	return &Stage{conversations: conversations}
}

func (s *Stage) Name() string { return "call_log" }

func (s *Stage) DefaultOptions() chain.Options {
	return chain.Options{
		IngressTopics: []string{chain.DefaultIngressTopic},
	}
}

// Projection is the call_log attachment body.
type Projection struct {
	ID             string          `json:"id"`
	CustomerNumber string          `json:"customer_number,omitempty"`
	Extension      string          `json:"extension,omitempty"`
	AgentName      string          `json:"agent_name,omitempty"`
	Disposition    string          `json:"disposition"`
	Direction      string          `json:"direction,omitempty"`
	CallStartedOn  string          `json:"call_started_on,omitempty"`
	CreatedOn      time.Time       `json:"created_on"`
	ModifiedOn     time.Time       `json:"modified_on"`
	Duration       int             `json:"duration"`
	LeadID         int64           `json:"lead_id,omitempty"`
	DealerID       string          `json:"dealer_id,omitempty"`
	DealerName     string          `json:"dealer_name,omitempty"`
	DealerNumber   string          `json:"dealer_number,omitempty"`
	Legs           []LegProjection `json:"legs"`
}

// LegProjection is one classified leg inside the projection.
type LegProjection struct {
	Start          time.Time `json:"start"`
	Duration       int       `json:"duration"`
	Direction      string    `json:"direction"`
	Disposition    string    `json:"disposition"`
	AgentExtension string    `json:"agent_extension,omitempty"`
	AgentName      string    `json:"agent_name,omitempty"`
}

func (s *Stage) Process(ctx context.Context, conversationID string, _ chain.Options) (bool, error) {
	rec, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return false, fmt.Errorf("call_log load: %w", err)
	}

	projection, err := Project(rec)
	if err != nil {
		return false, fmt.Errorf("call_log project %s: %w", conversationID, err)
	}

	body, err := json.Marshal(projection)
	if err != nil {
		return false, fmt.Errorf("call_log encode %s: %w", conversationID, err)
	}

	rec.ReplaceAttachment(model.Attachment{
		Kind:       model.AttachmentCallLog,
		ReceivedAt: time.Now().UTC(),
		Body:       body,
	})

	if err := s.conversations.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("call_log save: %w", err)
	}

	slog.InfoContext(ctx, "call log projected", "disposition", projection.Disposition)
	return true, nil
}

// Project builds the projection from a conversation record. Pure except for
// the created/modified timestamps.
func Project(rec *model.Record) (*Projection, error) {
	classification, err := disposition.Classify(rec.Legs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Projection{
		ID:          rec.UUID,
		Disposition: classification.Outcome,
		CreatedOn:   now,
		ModifiedOn:  now,
	}

	for _, party := range rec.Parties {
		if party.Role == model.RoleCustomer {
			p.CustomerNumber = party.Tel
			break
		}
	}

	main := classification.Legs[classification.MainLeg]
	if agent := partyAt(rec, main.AgentParty); agent != nil {
		p.Extension = agent.Extension
		p.AgentName = agent.Name
	}

	for _, leg := range classification.Legs {
		p.Duration += leg.Duration
		lp := LegProjection{
			Start:       leg.Start,
			Duration:    leg.Duration,
			Direction:   string(leg.Direction),
			Disposition: leg.Outcome,
		}
		if agent := partyAt(rec, leg.AgentParty); agent != nil {
			lp.AgentExtension = agent.Extension
			lp.AgentName = agent.Name
		}
		p.Legs = append(p.Legs, lp)
	}

	if att := rec.AttachmentByKind(model.AttachmentTelephony); att != nil {
		if att.Event != nil {
			p.Direction = string(att.Event.Direction)
			p.CallStartedOn = att.Event.StartedAt
		}
		if att.Dealer != nil {
			p.DealerID = att.Dealer.ID
			p.DealerName = att.Dealer.Name
			if att.Event != nil && att.Event.Direction == model.DirectionOut {
				p.DealerNumber = phone.Normalize(att.Dealer.OutboundPhoneNumber)
			}
		} else if att.Event != nil && att.Event.DealerName != "" {
			// Legacy feeds carry only a display name, no directory entry.
			p.DealerName = att.Event.DealerName
		}
	}

	if lead := rec.AttachmentByKind(model.AttachmentLead); lead != nil && len(lead.Body) > 0 {
		var ref struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(lead.Body, &ref); err == nil {
			p.LeadID = ref.ID
		}
	}

	return p, nil
}

func partyAt(rec *model.Record, idx int) *model.Party {
	if idx < 0 || idx >= len(rec.Parties) {
		return nil
	}
	return &rec.Parties[idx]
}
