package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/api/media"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	templates "github.com/codemeet/codemeet-api/templates/html"
)

// MediaWebhook receives asynchronous room-lifecycle callbacks from the media
// provider. Deliveries are authenticated with a shared key, may arrive more
// than once, and may reference rooms this service never created.
type MediaWebhook struct {
	SDB databases.SessionDatabase
	UDB databases.UserDatabase
	Cfg *config.Config
}

// EventHandler processes one webhook delivery. Unknown rooms and unknown
// event names are acknowledged with 200 so the provider stops retrying them.
func (m MediaWebhook) EventHandler(w http.ResponseWriter, r *http.Request) {
	if m.Cfg.MediaWebhookKey != "" && r.Header.Get("X-Webhook-Key") != m.Cfg.MediaWebhookKey {
		config.ErrorStatus("invalid webhook key", http.StatusUnauthorized, w, errUnauthenticated)
		return
	}

	var event media.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		config.ErrorStatus("failed to decode webhook payload", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := m.SDB.FindOne(ctx, bson.M{"session.roomID": event.RoomID})
	if err == mongo.ErrNoDocuments {
		// not our room; acknowledge so the provider does not retry forever
		zap.S().Debugw("webhook for unknown room", "roomID", event.RoomID, "event", event.Event)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"response": "ignored"}`))
		return
	}
	if err != nil {
		// transient store failure; a 5xx keeps the provider retrying
		config.ErrorStatus("failed to look up session for room", http.StatusInternalServerError, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())

	switch event.Event {
	case media.EventRecordingFinished:
		_, err := m.SDB.UpdateOne(ctx,
			bson.M{"_id": session.ID},
			bson.M{"$set": bson.M{
				"session.recordingURL": event.RecordingURL,
				"session.updatedAt":    now,
			}},
		)
		if err != nil {
			config.ErrorStatus("failed to store recording URL", http.StatusInternalServerError, w, err)
			return
		}
		m.endSession(ctx, session.ID, now)
		go m.notifyRecording(session.Details.HostID, session.Details.Title, event.RecordingURL)

	case media.EventRoomFinished:
		m.endSession(ctx, session.ID, now)

	default:
		zap.S().Debugw("unhandled webhook event", "event", event.Event, "roomID", event.RoomID)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"response": "ok"}`))
}

// endSession applies the same conditional transition the end operation uses,
// so a webhook racing the host (or a duplicate delivery) is a no-op
func (m MediaWebhook) endSession(ctx context.Context, id primitive.ObjectID, now primitive.DateTime) {
	res, err := m.SDB.UpdateOne(ctx,
		bson.M{
			"_id":               id,
			"session.startedAt": bson.M{"$ne": nil},
			"session.endedAt":   nil,
		},
		bson.M{"$set": bson.M{
			"session.endedAt":      now,
			"session.isChatClosed": true,
			"session.updatedAt":    now,
		}},
	)
	if err != nil {
		zap.S().Errorw("failed to end session from webhook", "sessionID", id.Hex(), "error", err)
		return
	}
	if res != nil && res.ModifiedCount() == 0 {
		zap.S().Debugw("webhook end was a no-op", "sessionID", id.Hex())
	}
}

// notifyRecording mails the host a link to the finished recording. Mail is
// best effort and skipped entirely when sendgrid is not configured.
func (m MediaWebhook) notifyRecording(hostID, title, recordingURL string) {
	if m.Cfg.SendgridAPIKey == "" {
		return
	}

	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()

	oid, err := primitive.ObjectIDFromHex(hostID)
	if err != nil {
		return
	}
	user, err := m.UDB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil || user.Details.Email == "" {
		return
	}

	subject := "Your session recording is ready - CodeMeet"
	body := "The recording for your session \"" + title + "\" is ready:\n\n" + recordingURL
	htmlContent := templates.RenderGenericEmail(subject, body)

	from := mail.NewEmail("CodeMeet", m.Cfg.SenderEmail)
	to := mail.NewEmail(user.Details.Name, user.Details.Email)
	message := mail.NewSingleEmail(from, subject, to, body, htmlContent)
	client := sendgrid.NewSendClient(m.Cfg.SendgridAPIKey)
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send recording email", "error", err, "hostID", hostID)
		return
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
}
