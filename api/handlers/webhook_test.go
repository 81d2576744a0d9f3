package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/codemeet/codemeet-api/api/handlers"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases/mocks"
)

func webhookRequest(body, key string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/media/webhook", bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set("X-Webhook-Key", key)
	}
	return req
}

func TestMediaWebhook_EventHandlerRejectsBadKey(t *testing.T) {
	sessionDB := &mocks.SessionDatabase{}

	req := webhookRequest(`{"event": "room_finished", "roomId": "room-fixture"}`, "wrong-key")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{MediaWebhookKey: "secret"}}.EventHandler(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	sessionDB.AssertNotCalled(t, "FindOne", mock.Anything, mock.Anything)
}

func TestMediaWebhook_EventHandlerIgnoresUnknownRoom(t *testing.T) {
	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	req := webhookRequest(`{"event": "room_finished", "roomId": "not-our-room"}`, "")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ignored")
	sessionDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestMediaWebhook_EventHandlerStoreFailureKeepsProviderRetrying(t *testing.T) {
	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(nil, assertAnError)

	req := webhookRequest(`{"event": "recording_finished", "roomId": "room-fixture", "recordingUrl": "https://media.test/rec/abc.mp4"}`, "")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	// only a genuine miss is acknowledged; lookup failures must not eat the delivery
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	sessionDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestMediaWebhook_EventHandlerRoomFinishedEndsSession(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	var endFilter bson.M
	sessionDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(1, 1), nil).
		Run(func(args mock.Arguments) {
			endFilter = args.Get(1).(bson.M)
		})

	req := webhookRequest(`{"event": "room_finished", "roomId": "room-fixture"}`, "")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")

	// the end transition must stay conditional so duplicate deliveries no-op
	assert.Equal(t, session.ID, endFilter["_id"])
	assert.Equal(t, nil, endFilter["session.endedAt"])
	assert.Equal(t, bson.M{"$ne": nil}, endFilter["session.startedAt"])
}

func TestMediaWebhook_EventHandlerDuplicateDeliveryIsNoOp(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)
	sessionDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(0, 0), nil)

	req := webhookRequest(`{"event": "room_finished", "roomId": "room-fixture"}`, "")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	// already-ended sessions still acknowledge with 200
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestMediaWebhook_EventHandlerRecordingFinished(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	var updates []bson.M
	sessionDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(1, 1), nil).
		Run(func(args mock.Arguments) {
			updates = append(updates, args.Get(2).(bson.M))
		})

	req := webhookRequest(
		`{"event": "recording_finished", "roomId": "room-fixture", "recordingUrl": "https://media.test/rec/abc.mp4"}`, "")
	rr := httptest.NewRecorder()

	// sendgrid left unconfigured so the notification goroutine exits immediately
	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	// first write stores the recording URL, second one ends the session
	assert.Len(t, updates, 2)
	recordingSet := updates[0]["$set"].(bson.M)
	assert.Equal(t, "https://media.test/rec/abc.mp4", recordingSet["session.recordingURL"])
	endSet := updates[1]["$set"].(bson.M)
	assert.Equal(t, true, endSet["session.isChatClosed"])
	assert.Contains(t, endSet, "session.endedAt")
}

func TestMediaWebhook_EventHandlerUnknownEventAcknowledged(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	req := webhookRequest(`{"event": "participant_joined", "roomId": "room-fixture"}`, "")
	rr := httptest.NewRecorder()

	handlers.MediaWebhook{SDB: sessionDB, Cfg: &config.Config{}}.EventHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
	sessionDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}
