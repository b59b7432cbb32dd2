package dto

import "encoding/json"

type IngestEventRequest struct {
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type IngestEventResponse struct {
	MessageID string `json:"message_id"`
	Enqueued  bool   `json:"enqueued"`
}
