package dto

import (
	"time"

	"callyard.app/switchboard/internal/model"
)

type ConversationSummary struct {
	UUID      string    `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Legs      int       `json:"legs"`
	Parties   int       `json:"parties"`
	Analyses  int       `json:"analyses"`
}

func NewConversationSummary(rec *model.Record) ConversationSummary {
	return ConversationSummary{
		UUID:      rec.UUID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Legs:      len(rec.Legs),
		Parties:   len(rec.Parties),
		Analyses:  len(rec.Analyses),
	}
}

type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Offset        int64                 `json:"offset"`
	Count         int64                 `json:"count"`
}

type ReplayResponse struct {
	ConversationID string   `json:"conversation_id"`
	Topics         []string `json:"topics"`
}

type ChainInfo struct {
	Stages []string `json:"stages"`
}

type ListChainsResponse struct {
	Chains []ChainInfo `json:"chains"`
}
