package handler_test

import (
	"context"

	"callyard.app/switchboard/internal/model"
)

type mockConversationStore struct {
	getFn    func(ctx context.Context, id string) (*model.Record, error)
	listFn   func(ctx context.Context, offset, count int64) ([]*model.Record, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockConversationStore) Get(ctx context.Context, id string) (*model.Record, error) {
	return m.getFn(ctx, id)
}

func (m *mockConversationStore) List(ctx context.Context, offset, count int64) ([]*model.Record, error) {
	return m.listFn(ctx, offset, count)
}

func (m *mockConversationStore) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

type mockPublisher struct {
	enqueueFn func(ctx context.Context, kind string, payload []byte, traceID string) (string, error)
}

func (m *mockPublisher) Enqueue(ctx context.Context, kind string, payload []byte, traceID string) (string, error) {
	return m.enqueueFn(ctx, kind, payload, traceID)
}
