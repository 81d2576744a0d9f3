// Package media wraps the external media-routing provider (SFU). The core
// only ever asks it for signed, room-scoped join credentials and receives
// its room-lifecycle webhooks; the audio/video transport itself is not ours.
package media

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured is returned when credential issuance is attempted without
// provider keys; handlers map it to 503
var ErrNotConfigured = errors.New("media provider is not configured")

// Credential is a signed join pass plus the endpoint to present it to
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Provider mints join credentials for a media room
type Provider interface {
	JoinCredential(ctx context.Context, roomID, identity, displayName string, canPublish bool) (*Credential, error)
}

// credentialTTL bounds how long an issued join pass stays valid
const credentialTTL = 6 * time.Hour

// JWTProvider signs room-scoped HS256 grants the SFU verifies with the
// shared API secret
type JWTProvider struct {
	APIKey    string
	APISecret string
	Host      string

	now func() time.Time
}

// NewJWTProvider creates a provider from the configured key pair and host
func NewJWTProvider(apiKey, apiSecret, host string) *JWTProvider {
	return &JWTProvider{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Host:      host,
		now:       time.Now,
	}
}

// JoinCredential mints a signed join token for one identity in one room.
// Publish rights follow the granted role; data-channel publish is always on
// since it backs hand-raising and similar interaction signals.
func (p *JWTProvider) JoinCredential(ctx context.Context, roomID, identity, displayName string, canPublish bool) (*Credential, error) {
	if p.APIKey == "" || p.APISecret == "" || p.Host == "" {
		return nil, ErrNotConfigured
	}

	now := p.now()
	claims := jwt.MapClaims{
		"iss":  p.APIKey,
		"sub":  identity,
		"name": displayName,
		"nbf":  now.Unix(),
		"exp":  now.Add(credentialTTL).Unix(),
		"video": map[string]interface{}{
			"room":           roomID,
			"roomJoin":       true,
			"canPublish":     canPublish,
			"canSubscribe":   true,
			"canPublishData": true,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.APISecret))
	if err != nil {
		return nil, err
	}

	return &Credential{Token: signed, URL: p.Host}, nil
}

// Webhook event names the provider delivers
const (
	EventRecordingFinished = "recording_finished"
	EventRoomFinished      = "room_finished"
)

// WebhookEvent is an asynchronous room-lifecycle callback. Deliveries may be
// duplicated or reference rooms we never created; the handler must tolerate
// both.
type WebhookEvent struct {
	Event        string `json:"event"`
	RoomID       string `json:"roomId"`
	RecordingURL string `json:"recordingUrl"`
}
