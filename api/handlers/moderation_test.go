package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/codemeet/codemeet-api/api/handlers"
	"github.com/codemeet/codemeet-api/databases/mocks"
	"github.com/codemeet/codemeet-api/models"
)

func TestModeration_BanUserHandler(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	modDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(0, 0), nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/ban/viewer-1",
		bytes.NewBufferString(`{"reason": "spam"}`), "host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	m.BanUserHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	modDB.AssertExpectations(t)
}

func TestModeration_BanUserHandlerMissingTarget(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/ban/", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex()})
	rr := httptest.NewRecorder()

	m.BanUserHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	// a validation failure, not an identity one
	assert.Contains(t, rr.Body.String(), "user_id path variable is empty")
	assert.NotContains(t, rr.Body.String(), "caller identity")
	modDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestModeration_BanUserHandlerNotHost(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/ban/viewer-1", nil,
		"viewer-2", "Eve",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	m.BanUserHandler(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	modDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestModeration_BanUserHandlerRepeatIsIdempotent(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	// the upsert matches the existing entry and changes nothing; the
	// handler still reports success
	modDB := &mocks.ModerationDatabase{}
	modDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(1, 0), nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/ban/viewer-1", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	m.BanUserHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestModeration_UnbanUserHandler(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	modDB.On("DeleteOne", mock.Anything, mock.MatchedBy(func(filter bson.M) bool {
		return filter["moderation.kind"] == models.ModerationKindBan &&
			filter["moderation.userID"] == "viewer-1"
	})).Return(int64(1), nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("DELETE", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/ban/viewer-1", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	m.UnbanUserHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	modDB.AssertExpectations(t)
}

func TestModeration_MuteUserHandlerWritesMuteKind(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	modDB.On("UpdateOne", mock.Anything, mock.MatchedBy(func(filter bson.M) bool {
		return filter["moderation.kind"] == models.ModerationKindMute
	}), mock.Anything, mock.Anything).Return(updateResult(0, 0), nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/mute/viewer-1", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	m.MuteUserHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	modDB.AssertExpectations(t)
}

func TestModeration_ListModerationHandler(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	modDB.On("Find", mock.Anything, mock.Anything).Return([]models.ModerationEntry{
		{Details: models.ModerationDetails{SessionID: session.ID.Hex(), UserID: "viewer-1", Kind: models.ModerationKindBan}},
	}, nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: modDB}

	req := authedRequest("GET", "/api/v1/sessions/"+session.ID.Hex()+"/moderation", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex()})
	rr := httptest.NewRecorder()

	m.ListModerationHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []models.ModerationEntry `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, models.ModerationKindBan, resp.Data[0].Details.Kind)
}

func TestModeration_SetTogglesHandlerPartialUpdate(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	var update bson.M
	sessionDB.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(updateResult(1, 1), nil).
		Run(func(args mock.Arguments) {
			update = args.Get(2).(bson.M)
		})

	m := handlers.Moderation{SDB: sessionDB, MDB: &mocks.ModerationDatabase{}}

	req := authedRequest("PUT", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/toggles",
		bytes.NewBufferString(`{"isChatClosed": true}`), "host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex()})
	rr := httptest.NewRecorder()

	m.SetTogglesHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	// only the named toggle and the timestamp were written
	set := update["$set"].(bson.M)
	assert.Equal(t, true, set["session.isChatClosed"])
	assert.Contains(t, set, "session.updatedAt")
	assert.NotContains(t, set, "session.isViewOnly")
	assert.NotContains(t, set, "session.isStuck")
}

func TestModeration_SetTogglesHandlerNotHost(t *testing.T) {
	session := sessionFixture("host-1")

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	m := handlers.Moderation{SDB: sessionDB, MDB: &mocks.ModerationDatabase{}}

	req := authedRequest("PUT", "/api/v1/sessions/"+session.ID.Hex()+"/moderation/toggles",
		bytes.NewBufferString(`{"isViewOnly": true}`), "viewer-1", "Eve",
		map[string]string{"session_id": session.ID.Hex()})
	rr := httptest.NewRecorder()

	m.SetTogglesHandler(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	sessionDB.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}
