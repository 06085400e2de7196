package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFCMSender_Name(t *testing.T) {
	s := push.NewFCMSender("", push.StaticTokenSource{})
	assert.Equal(t, "fcm", s.Name())
}

func TestFCMSender_Send(t *testing.T) {
	var (
		path     string
		auth     string
		received map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"projects/demo/messages/1"}`))
	}))
	defer server.Close()

	s := push.NewFCMSender(server.URL, push.StaticTokenSource{AccessToken: "tok-123", ProjectID: "demo"})
	err := s.Send(context.Background(), push.Message{
		Token: "device-1",
		Title: "Daily Budget Alert",
		Body:  "You've spent $85.00 of $100.00 (80% threshold reached)",
		Data:  map[string]string{"type": "budget_alert", "period": "daily"},
		Android: push.AndroidConfig{
			Priority:  push.PriorityHigh,
			ChannelID: push.ChannelBudgetAlerts,
			Sound:     "default",
		},
		APNS: push.APNSConfig{Sound: "default", Badge: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/projects/demo/messages:send", path)
	assert.Equal(t, "Bearer tok-123", auth)

	msg := received["message"].(map[string]any)
	assert.Equal(t, "device-1", msg["token"])
	notification := msg["notification"].(map[string]any)
	assert.Equal(t, "Daily Budget Alert", notification["title"])
	assert.Equal(t, "budget_alert", msg["data"].(map[string]any)["type"])

	android := msg["android"].(map[string]any)
	assert.Equal(t, "high", android["priority"])
	assert.Equal(t, "budget_alerts", android["notification"].(map[string]any)["channel_id"])

	aps := msg["apns"].(map[string]any)["payload"].(map[string]any)["aps"].(map[string]any)
	assert.Equal(t, "default", aps["sound"])
	assert.EqualValues(t, 1, aps["badge"])
}

func TestFCMSender_Send_DataOnly(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := push.NewFCMSender(server.URL, push.StaticTokenSource{AccessToken: "tok", ProjectID: "demo"})
	err := s.Send(context.Background(), push.Message{
		Token:   "device-1",
		Data:    map[string]string{"type": "warranty_email_trigger"},
		Android: push.AndroidConfig{Priority: push.PriorityHigh},
		APNS:    push.APNSConfig{ContentAvailable: true},
	})
	require.NoError(t, err)

	msg := received["message"].(map[string]any)
	assert.NotContains(t, msg, "notification")
	assert.NotContains(t, msg["android"].(map[string]any), "notification")

	apns := msg["apns"].(map[string]any)
	assert.Equal(t, "10", apns["headers"].(map[string]any)["apns-priority"])
	aps := apns["payload"].(map[string]any)["aps"].(map[string]any)
	assert.EqualValues(t, 1, aps["content-available"])
}

func TestFCMSender_Send_ErrorStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":"UNREGISTERED"}}`))
	}))
	defer server.Close()

	s := push.NewFCMSender(server.URL, push.StaticTokenSource{AccessToken: "tok", ProjectID: "demo"})
	err := s.Send(context.Background(), push.Message{Token: "stale", Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "UNREGISTERED")
	assert.Equal(t, 1, calls, "no retries")
}

func TestFCMSender_Send_NoCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("endpoint must not be called without credentials")
	}))
	defer server.Close()

	s := push.NewFCMSender(server.URL, push.StaticTokenSource{})
	err := s.Send(context.Background(), push.Message{Token: "device-1", Title: "t", Body: "b"})
	assert.True(t, errors.Is(err, push.ErrNoCredentials))
}

func TestFCMSender_Send_EmptyToken(t *testing.T) {
	s := push.NewFCMSender("http://127.0.0.1:0", push.StaticTokenSource{AccessToken: "tok", ProjectID: "demo"})
	err := s.Send(context.Background(), push.Message{Title: "t", Body: "b"})
	assert.Error(t, err)
}

func TestMessage_DataOnly(t *testing.T) {
	assert.True(t, push.Message{Data: map[string]string{"type": "x"}}.DataOnly())
	assert.False(t, push.Message{Title: "hi"}.DataOnly())
}
