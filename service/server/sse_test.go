package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSEStreamFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := newSSEStream(rec)

	stream.send("connected", []byte(`{"subject":"ops.*.*"}`))
	stream.comment("keepalive")
	stream.send("record", []byte(`{"id":"r1"}`))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		"event: connected\ndata: {\"subject\":\"ops.*.*\"}\n\n"+
			": keepalive\n\n"+
			"event: record\ndata: {\"id\":\"r1\"}\n\n",
		rec.Body.String())
}

func TestStreamHistory_RejectsBadFilters(t *testing.T) {
	h := handleStreamHistory(&SSEPublisher{logger: testLogger()}, nil, testLogger())

	for _, query := range []string{"?type=burn", "?status=pending"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/history"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
