package model

import (
	"encoding/json"
	"time"

	"callyard.app/switchboard/common/phone"
)

// Party roles.
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
)

// Attachment kinds.
const (
	AttachmentTelephony = "telephony"
	AttachmentCallLog   = "call_log"
	AttachmentLead      = "lead"
)

// Analysis types.
const (
	AnalysisTranscript = "transcript"
	AnalysisSummary    = "summary"
)

// Record is the durable aggregate for one logical call: every leg, party,
// attachment and analysis that belongs to the conversation. It is persisted
// to the shared store after every mutation; there is no in-memory hand-off
// between stages.
type Record struct {
	UUID        string       `json:"uuid"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Parties     []Party      `json:"parties"`
	Legs        []Leg        `json:"legs"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Analyses    []Analysis   `json:"analyses,omitempty"`
}

// Party is one participant in a conversation. Customers are identified by
// phone number, agents by extension.
type Party struct {
	Tel       string `json:"tel,omitempty"`
	Mailto    string `json:"mailto,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	Extension string `json:"extension,omitempty"`
}

// Leg is one call attempt within a conversation. Created when a call_ended
// event is processed; immutable afterwards except for the media fields,
// which are filled in once a recording becomes available.
type Leg struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Duration      int       `json:"duration"` // seconds, derived
	Direction     Direction `json:"direction"`
	Disposition   string    `json:"disposition"` // raw source disposition (ANSWERED, MISSED, ...)
	CustomerParty int       `json:"customer_party"`
	AgentParty    int       `json:"agent_party"`
	CallID        string    `json:"call_id"` // source-assigned, unique per leg
	MediaType     string    `json:"media_type,omitempty"`
	Filename      string    `json:"filename,omitempty"`
	URL           string    `json:"url,omitempty"`
	Signature     string    `json:"signature,omitempty"`
	SignatureAlg  string    `json:"signature_alg,omitempty"`
}

// Attachment is an opaque, provenance-tagged blob on the conversation.
// CallID and Source are indexed for duplicate-delivery detection.
type Attachment struct {
	Kind       string          `json:"kind"`
	Source     string          `json:"source,omitempty"`
	Version    string          `json:"version,omitempty"`
	Ingress    []string        `json:"ingress,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	CallID     string          `json:"call_id,omitempty"`
	Event      *CallEvent      `json:"event,omitempty"`
	Dealer     *Dealer         `json:"dealer,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Dealer is the cached dealer-directory entry stamped into the telephony
// attachment at ingest time.
type Dealer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	OutboundPhoneNumber string `json:"outbound_phone_number,omitempty"`
	Team                string `json:"team,omitempty"`
}

// Analysis is a derived artifact (transcript, summary) tied to one leg.
type Analysis struct {
	Type     string `json:"type"`
	Leg      int    `json:"leg"`
	Vendor   string `json:"vendor,omitempty"`
	Body     string `json:"body"`
	Encoding string `json:"encoding,omitempty"`
}

// NewRecord creates an empty conversation with a fresh identifier.
func NewRecord(uuid string) *Record {
	now := time.Now().UTC()
	return &Record{
		UUID:      uuid,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PartyByTel returns the index of the first party with the given phone
// number, or -1.
func (r *Record) PartyByTel(tel string) int {
	for i, p := range r.Parties {
		if p.Tel == tel && p.Tel != "" {
			return i
		}
	}
	return -1
}

// PartyByExtension returns the index of the first party with the given
// extension, or -1.
func (r *Record) PartyByExtension(extension string) int {
	for i, p := range r.Parties {
		if p.Extension == extension && p.Extension != "" {
			return i
		}
	}
	return -1
}

// AddParty appends a party and returns its index.
func (r *Record) AddParty(p Party) int {
	r.Parties = append(r.Parties, p)
	return len(r.Parties) - 1
}

// EnsureCustomer returns the index of the customer party with the given
// number, appending a new one only when no match exists. Reusing the
// existing index keeps the party list free of duplicate (number, role) pairs.
func (r *Record) EnsureCustomer(tel string) int {
	tel = phone.Normalize(tel)
	if i := r.PartyByTel(tel); i >= 0 {
		return i
	}
	return r.AddParty(Party{Tel: tel, Role: RoleCustomer})
}

// EnsureAgent returns the index of the agent party with the given extension,
// appending a new one only when no match exists.
func (r *Record) EnsureAgent(extension, dealerNumber, email, name string) int {
	if i := r.PartyByExtension(extension); i >= 0 {
		return i
	}
	return r.AddParty(Party{
		Tel:       phone.Normalize(dealerNumber),
		Mailto:    email,
		Name:      name,
		Role:      RoleAgent,
		Extension: extension,
	})
}

// AddLeg appends a leg and bumps the record's modification time.
func (r *Record) AddLeg(l Leg) int {
	r.Legs = append(r.Legs, l)
	r.UpdatedAt = time.Now().UTC()
	return len(r.Legs) - 1
}

// AttachmentByKind returns the first attachment with the given kind, or nil.
func (r *Record) AttachmentByKind(kind string) *Attachment {
	for i := range r.Attachments {
		if r.Attachments[i].Kind == kind {
			return &r.Attachments[i]
		}
	}
	return nil
}

// ReplaceAttachment replaces the first attachment of the same kind, or
// appends when none exists.
func (r *Record) ReplaceAttachment(a Attachment) {
	for i := range r.Attachments {
		if r.Attachments[i].Kind == a.Kind {
			r.Attachments[i] = a
			return
		}
	}
	r.Attachments = append(r.Attachments, a)
}

// AnalysisFor returns the first analysis of the given type for the given leg
// index, or nil.
func (r *Record) AnalysisFor(analysisType string, leg int) *Analysis {
	for i := range r.Analyses {
		if r.Analyses[i].Type == analysisType && r.Analyses[i].Leg == leg {
			return &r.Analyses[i]
		}
	}
	return nil
}
