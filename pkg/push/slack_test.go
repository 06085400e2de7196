package push_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackSender_Name(t *testing.T) {
	n := push.NewSlackSender("https://hooks.slack.com/test", "#alerts")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackSender_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := push.NewSlackSender(server.URL, "#alerts")
	err := n.Send(context.Background(), push.Message{
		Title: "🟠 Passport Expiring Soon",
		Body:  "This document expires in 7 days",
		Data:  map[string]string{"type": "warranty_expiry", "urgency": "high", "daysUntilExpiry": "7"},
	})
	require.NoError(t, err)

	assert.Equal(t, "#alerts", received["channel"])
	attachments := received["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "🟠 Passport Expiring Soon", att["title"])
	assert.Equal(t, "#ff0000", att["color"])
	assert.Len(t, att["fields"].([]any), 2)
}

func TestSlackSender_Send_SkipsDataOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("data-only messages must not reach slack")
	}))
	defer server.Close()

	n := push.NewSlackSender(server.URL, "")
	err := n.Send(context.Background(), push.Message{Data: map[string]string{"type": "daily_email_report"}})
	assert.NoError(t, err)
}

func TestSlackSender_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := push.NewSlackSender(server.URL, "")
	err := n.Send(context.Background(), push.Message{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
