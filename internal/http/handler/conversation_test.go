package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/bus"
	"callyard.app/switchboard/internal/http/dto"
	"callyard.app/switchboard/internal/http/handler"
	"callyard.app/switchboard/internal/model"
	"callyard.app/switchboard/internal/store"
)

type mockBus struct {
	publishFn func(ctx context.Context, topic, payload string) error
}

func (m *mockBus) Publish(ctx context.Context, topic, payload string) error {
	return m.publishFn(ctx, topic, payload)
}

func (m *mockBus) Subscribe(context.Context, ...string) (bus.Subscription, error) {
	return nil, errors.New("not implemented")
}

var _ = Describe("ConversationHandler", func() {
	var (
		conversations *mockConversationStore
		b             *mockBus
		router        *gin.Engine
		recorder      *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		conversations = &mockConversationStore{}
		b = &mockBus{publishFn: func(context.Context, string, string) error { return nil }}

		h := handler.NewConversationHandler(conversations, b, []string{"ingress-conversations"})
		router = gin.New()
		router.GET("/conversations", h.List)
		router.GET("/conversations/:id", h.Get)
		router.DELETE("/conversations/:id", h.Delete)
		router.POST("/conversations/:id/replay", h.Replay)

		recorder = httptest.NewRecorder()
	})

	Describe("List", func() {
		It("returns conversation summaries", func() {
			rec := model.NewRecord("conv-1")
			rec.EnsureCustomer("4155550199")
			rec.AddLeg(model.Leg{CallID: "call-1"})
			conversations.listFn = func(_ context.Context, offset, count int64) ([]*model.Record, error) {
				Expect(offset).To(Equal(int64(0)))
				Expect(count).To(Equal(int64(20)))
				return []*model.Record{rec}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp dto.ListConversationsResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Conversations).To(HaveLen(1))
			Expect(resp.Conversations[0].UUID).To(Equal("conv-1"))
			Expect(resp.Conversations[0].Legs).To(Equal(1))
			Expect(resp.Conversations[0].Parties).To(Equal(1))
		})

		It("clamps an oversized count", func() {
			conversations.listFn = func(_ context.Context, _, count int64) ([]*model.Record, error) {
				Expect(count).To(Equal(int64(20)))
				return nil, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations?count=500", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("passes the offset through", func() {
			conversations.listFn = func(_ context.Context, offset, _ int64) ([]*model.Record, error) {
				Expect(offset).To(Equal(int64(40)))
				return nil, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations?offset=40", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("returns 500 when the store fails", func() {
			conversations.listFn = func(context.Context, int64, int64) ([]*model.Record, error) {
				return nil, errors.New("redis down")
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Get", func() {
		It("returns the full record", func() {
			rec := model.NewRecord("conv-1")
			conversations.getFn = func(_ context.Context, id string) (*model.Record, error) {
				Expect(id).To(Equal("conv-1"))
				return rec, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var got model.Record
			Expect(json.Unmarshal(recorder.Body.Bytes(), &got)).To(Succeed())
			Expect(got.UUID).To(Equal("conv-1"))
		})

		It("returns 404 for an unknown conversation", func() {
			conversations.getFn = func(context.Context, string) (*model.Record, error) {
				return nil, store.ErrNotFound
			}

			req := httptest.NewRequest(http.MethodGet, "/conversations/nope", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Delete", func() {
		It("returns 204 on success", func() {
			deleted := ""
			conversations.deleteFn = func(_ context.Context, id string) error {
				deleted = id
				return nil
			}

			req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusNoContent))
			Expect(deleted).To(Equal("conv-1"))
		})

		It("returns 500 when the store fails", func() {
			conversations.deleteFn = func(context.Context, string) error {
				return errors.New("redis down")
			}

			req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Replay", func() {
		It("republishes the conversation id to the replay topics", func() {
			conversations.getFn = func(context.Context, string) (*model.Record, error) {
				return model.NewRecord("conv-1"), nil
			}
			var published []string
			b.publishFn = func(_ context.Context, topic, payload string) error {
				Expect(payload).To(Equal("conv-1"))
				published = append(published, topic)
				return nil
			}

			req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/replay", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusAccepted))
			Expect(published).To(Equal([]string{"ingress-conversations"}))

			var resp dto.ReplayResponse
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.ConversationID).To(Equal("conv-1"))
			Expect(resp.Topics).To(Equal([]string{"ingress-conversations"}))
		})

		It("returns 404 instead of replaying an unknown conversation", func() {
			conversations.getFn = func(context.Context, string) (*model.Record, error) {
				return nil, store.ErrNotFound
			}
			b.publishFn = func(context.Context, string, string) error {
				Fail("publish should not be called")
				return nil
			}

			req := httptest.NewRequest(http.MethodPost, "/conversations/nope/replay", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when publishing fails", func() {
			conversations.getFn = func(context.Context, string) (*model.Record, error) {
				return model.NewRecord("conv-1"), nil
			}
			b.publishFn = func(context.Context, string, string) error {
				return errors.New("bus down")
			}

			req := httptest.NewRequest(http.MethodPost, "/conversations/conv-1/replay", nil)
			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
