package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFCMEndpoint is the FCM HTTP v1 base URL.
const DefaultFCMEndpoint = "https://fcm.googleapis.com"

// FCMSender sends messages through the FCM HTTP v1 API. Each message is
// posted once; failures are returned to the caller without retrying.
type FCMSender struct {
	endpoint string
	tokens   TokenSource
	client   *http.Client
}

// NewFCMSender creates an FCM sender. An empty endpoint uses DefaultFCMEndpoint.
func NewFCMSender(endpoint string, tokens TokenSource) *FCMSender {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	return &FCMSender{
		endpoint: strings.TrimRight(endpoint, "/"),
		tokens:   tokens,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (f *FCMSender) Name() string { return "fcm" }

func (f *FCMSender) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return fmt.Errorf("fcm: empty device token")
	}
	cred, err := f.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("fcm credentials: %w", err)
	}

	body, err := json.Marshal(fcmRequest{Message: newFCMMessage(msg)})
	if err != nil {
		return fmt.Errorf("marshal fcm message: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", f.endpoint, cred.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("fcm returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority     string                  `json:"priority,omitempty"`
	Notification *fcmAndroidNotification `json:"notification,omitempty"`
}

type fcmAndroidNotification struct {
	ChannelID string `json:"channel_id,omitempty"`
	Sound     string `json:"sound,omitempty"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload fcmAPNSPayload    `json:"payload"`
}

type fcmAPNSPayload struct {
	APS fcmAPS `json:"aps"`
}

type fcmAPS struct {
	Sound            string `json:"sound,omitempty"`
	Badge            int    `json:"badge,omitempty"`
	ContentAvailable int    `json:"content-available,omitempty"`
}

func newFCMMessage(msg Message) fcmMessage {
	out := fcmMessage{Token: msg.Token, Data: msg.Data}
	if !msg.DataOnly() {
		out.Notification = &fcmNotification{Title: msg.Title, Body: msg.Body}
	}

	if msg.Android != (AndroidConfig{}) {
		out.Android = &fcmAndroid{Priority: msg.Android.Priority}
		if !msg.DataOnly() && (msg.Android.ChannelID != "" || msg.Android.Sound != "") {
			out.Android.Notification = &fcmAndroidNotification{
				ChannelID: msg.Android.ChannelID,
				Sound:     msg.Android.Sound,
			}
		}
	}

	if msg.APNS != (APNSConfig{}) {
		aps := fcmAPS{Sound: msg.APNS.Sound, Badge: msg.APNS.Badge}
		out.APNS = &fcmAPNS{Payload: fcmAPNSPayload{APS: aps}}
		if msg.APNS.ContentAvailable {
			out.APNS.Payload.APS.ContentAvailable = 1
			out.APNS.Headers = map[string]string{"apns-priority": "10"}
		}
	}
	return out
}
