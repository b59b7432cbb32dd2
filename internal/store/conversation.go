package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"callyard.app/switchboard/internal/model"
)

const (
	conversationKeyPrefix = "conversation:"
	conversationIndex     = "idx:conversation-calls"
	recencyKey            = "conversations:recent"
)

// ConversationStore persists conversation records as RedisJSON documents.
// A RediSearch index over the attachment source/call-id tags serves the
// duplicate-delivery lookup; a recency zset serves the listing API.
type ConversationStore struct {
	client *redis.Client
}

func NewConversationStore(client *redis.Client) *ConversationStore {
	return &ConversationStore{client: client}
}

// EnsureIndex creates the dedup search index if it does not already exist.
func (s *ConversationStore) EnsureIndex(ctx context.Context) error {
	err := s.client.FTCreate(ctx, conversationIndex,
		&redis.FTCreateOptions{
			OnJSON: true,
			Prefix: []interface{}{conversationKeyPrefix},
		},
		&redis.FieldSchema{
			FieldName: "$.attachments[*].source",
			As:        "source",
			FieldType: redis.SearchFieldTypeTag,
		},
		&redis.FieldSchema{
			FieldName: "$.attachments[*].call_id",
			As:        "call_id",
			FieldType: redis.SearchFieldTypeTag,
		},
	).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return fmt.Errorf("creating conversation index: %w", err)
	}
	return nil
}

func conversationKey(id string) string {
	return conversationKeyPrefix + id
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*model.Record, error) {
	raw, err := s.client.JSONGet(ctx, conversationKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation get %s: %w", id, err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("conversation decode %s: %w", id, err)
	}
	return &rec, nil
}

// Save writes the record back as the durable source of truth. Last write
// wins: there is no optimistic locking, stages in one chain process a
// conversation sequentially by topic order.
func (s *ConversationStore) Save(ctx context.Context, rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("conversation encode %s: %w", rec.UUID, err)
	}
	if err := s.client.JSONSet(ctx, conversationKey(rec.UUID), "$", string(data)).Err(); err != nil {
		return fmt.Errorf("conversation save %s: %w", rec.UUID, err)
	}
	if err := s.client.ZAdd(ctx, recencyKey, redis.Z{
		Score:  float64(rec.CreatedAt.UnixMilli()),
		Member: rec.UUID,
	}).Err(); err != nil {
		return fmt.Errorf("conversation index %s: %w", rec.UUID, err)
	}
	return nil
}

func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, conversationKey(id)).Result()
	if err != nil {
		return fmt.Errorf("conversation delete %s: %w", id, err)
	}
	if err := s.client.ZRem(ctx, recencyKey, id).Err(); err != nil {
		return fmt.Errorf("conversation unindex %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns conversations most-recent-first.
func (s *ConversationStore) List(ctx context.Context, offset, count int64) ([]*model.Record, error) {
	ids, err := s.client.ZRevRange(ctx, recencyKey, offset, offset+count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation list: %w", err)
	}
	records := make([]*model.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Expired or deleted behind the zset; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindByCallID looks up the conversation whose attachments carry the given
// source call identifier. Used by the deduplicator to detect concurrent
// deliveries of the same physical call.
func (s *ConversationStore) FindByCallID(ctx context.Context, source, callID string) (*model.Record, error) {
	query := fmt.Sprintf("@source:{%s} @call_id:{%s}", escapeTag(source), escapeTag(callID))
	res, err := s.client.FTSearchWithArgs(ctx, conversationIndex, query,
		&redis.FTSearchOptions{Limit: 1},
	).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation search %s/%s: %w", source, callID, err)
	}
	if len(res.Docs) == 0 {
		return nil, ErrNotFound
	}
	raw, ok := res.Docs[0].Fields["$"]
	if !ok {
		return nil, fmt.Errorf("conversation search %s/%s: document %s has no JSON payload", source, callID, res.Docs[0].ID)
	}
	var rec model.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("conversation search decode %s: %w", res.Docs[0].ID, err)
	}
	return &rec, nil
}

// escapeTag escapes RediSearch tag-query metacharacters in user-supplied
// values (call ids come off the wire).
func escapeTag(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ',', '.', '<', '>', '{', '}', '[', ']', '"', '\'', ':', ';', '!', '@',
			'#', '$', '%', '^', '&', '*', '(', ')', '-', '+', '=', '~', '|', ' ', '/':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
