package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"callyard.app/switchboard/internal/http/dto"
	"callyard.app/switchboard/internal/model"
)

// FeedPublisher enqueues raw feed events for the worker.
type FeedPublisher interface {
	Enqueue(ctx context.Context, kind string, payload []byte, traceID string) (string, error)
}

type EventIngestHandler struct {
	publisher FeedPublisher
}

func NewEventIngestHandler(publisher FeedPublisher) *EventIngestHandler {
	return &EventIngestHandler{publisher: publisher}
}

func (h *EventIngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch model.EventKind(req.Kind) {
	case model.KindCallStarted, model.KindCallEnded, model.KindRecordingAvailable:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}

	var traceID string
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		traceID = spanCtx.TraceID().String()
	}

	id, err := h.publisher.Enqueue(ctx, req.Kind, req.Payload, traceID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestEventResponse{
		MessageID: id,
		Enqueued:  true,
	})
}
