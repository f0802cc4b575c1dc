package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

func testMessage() *protocol.Message {
	return &protocol.Message{
		ID:        "11111111-2222-3333-4444-555555555555",
		RoomID:    "general",
		SenderID:  "u1",
		Content:   protocol.Content{Type: common.ContentTypeText, Text: "hi"},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestClient_SendSuccess(t *testing.T) {
	var got SendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendMessageResponse{ServerID: 42, CreatedAt: got.CreatedAt})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	serverID, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), serverID)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", got.ID)
	assert.Equal(t, "general", got.RoomID)
}

func TestClient_SendErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantReason common.FailureReason
	}{
		{name: "bad request is rejected", status: http.StatusBadRequest, wantReason: common.FailureRejected},
		{name: "forbidden is rejected", status: http.StatusForbidden, wantReason: common.FailureRejected},
		{name: "unauthorized is rejected", status: http.StatusUnauthorized, wantReason: common.FailureRejected},
		{name: "server error is transient", status: http.StatusInternalServerError, wantReason: common.FailureTransient},
		{name: "bad gateway is transient", status: http.StatusBadGateway, wantReason: common.FailureTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "tok-1")
			_, err := c.Send(context.Background(), testMessage())
			require.Error(t, err)

			var sendErr *common.SendError
			require.True(t, errors.As(err, &sendErr))
			assert.Equal(t, tt.wantReason, sendErr.Reason)
		})
	}
}

func TestClient_SendUnreachableServerIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL, "tok-1")
	_, err := c.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, common.Retryable(err))
}

func TestClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms/general/messages", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "50", r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []*protocol.Message{
				{ID: "m1", ServerID: 1, RoomID: "general"},
				{ID: "m2", ServerID: 2, RoomID: "general"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	messages, err := c.History(context.Background(), "general", 25, 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, uint64(1), messages[0].ServerID)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestClient_MarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/m1/read", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	require.NoError(t, c.MarkRead(context.Background(), "m1"))
}
