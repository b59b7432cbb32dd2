package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callyard.app/switchboard/internal/bus"
	"callyard.app/switchboard/internal/chain"
	"callyard.app/switchboard/internal/http/dto"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/store"
)

// ConversationStore is the read side the API exposes.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	List(ctx context.Context, offset, count int64) ([]*model.Record, error)
	Delete(ctx context.Context, id string) error
}

type ConversationHandler struct {
	conversations ConversationStore
	bus           bus.Bus
	replayTopics  []string
}

func NewConversationHandler(conversations ConversationStore, b bus.Bus, replayTopics []string) *ConversationHandler {
	if len(replayTopics) == 0 {
		replayTopics = []string{chain.DefaultIngressTopic}
	}
	return &ConversationHandler{
		conversations: conversations,
		bus:           b,
		replayTopics:  replayTopics,
	}
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	count, _ := strconv.ParseInt(c.DefaultQuery("count", "20"), 10, 64)
	if count <= 0 || count > 100 {
		count = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.conversations.List(ctx, offset, count)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	resp := dto.ListConversationsResponse{
		Conversations: make([]dto.ConversationSummary, 0, len(records)),
		Offset:        offset,
		Count:         count,
	}
	for _, rec := range records {
		resp.Conversations = append(resp.Conversations, dto.NewConversationSummary(rec))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	rec, err := h.conversations.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if err := h.conversations.Delete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to delete conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Replay pushes an existing conversation back through the pipeline topics.
func (h *ConversationHandler) Replay(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.conversations.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	for _, topic := range h.replayTopics {
		if err := h.bus.Publish(ctx, topic, id); err != nil {
			slog.ErrorContext(ctx, "failed to publish replay", "error", err, "topic", topic)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay conversation"})
			return
		}
	}

	slog.InfoContext(ctx, "conversation replayed", "conversation_id", id)
	c.JSON(http.StatusAccepted, dto.ReplayResponse{
		ConversationID: id,
		Topics:         h.replayTopics,
	})
}
