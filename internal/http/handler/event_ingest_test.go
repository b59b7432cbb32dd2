package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callyard.app/switchboard/internal/http/dto"
	"callyard.app/switchboard/internal/http/handler"
)

var _ = Describe("EventIngestHandler", func() {
	var (
		publisher *mockPublisher
		router    *gin.Engine
		recorder  *httptest.ResponseRecorder
	)

	post := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/events/ingest", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(recorder, req)
	}

	BeforeEach(func() {
		publisher = &mockPublisher{
			enqueueFn: func(context.Context, string, []byte, string) (string, error) {
				return "1700000000000-0", nil
			},
		}

		h := handler.NewEventIngestHandler(publisher)
		router = gin.New()
		router.POST("/events/ingest", h.Ingest)

		recorder = httptest.NewRecorder()
	})

	It("enqueues a valid event and returns 202", func() {
		var gotKind string
		var gotPayload []byte
		publisher.enqueueFn = func(_ context.Context, kind string, payload []byte, _ string) (string, error) {
			gotKind = kind
			gotPayload = payload
			return "1700000000000-0", nil
		}

		post(`{"kind":"call_ended","payload":{"id":"call-1"}}`)

		Expect(recorder.Code).To(Equal(http.StatusAccepted))
		Expect(gotKind).To(Equal("call_ended"))
		Expect(gotPayload).To(MatchJSON(`{"id":"call-1"}`))

		var resp dto.IngestEventResponse
		Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.MessageID).To(Equal("1700000000000-0"))
		Expect(resp.Enqueued).To(BeTrue())
	})

	It("rejects an unknown kind", func() {
		post(`{"kind":"call_parked","payload":{}}`)
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a request without a payload", func() {
		post(`{"kind":"call_ended"}`)
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects malformed JSON", func() {
		post(`{"kind":`)
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 500 when the feed is unavailable", func() {
		publisher.enqueueFn = func(context.Context, string, []byte, string) (string, error) {
			return "", errors.New("redis down")
		}

		post(`{"kind":"call_ended","payload":{"id":"call-1"}}`)
		Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
	})
})
