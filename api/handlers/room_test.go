package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/codemeet/codemeet-api/api/grants"
	"github.com/codemeet/codemeet-api/api/handlers"
	"github.com/codemeet/codemeet-api/api/media"
	"github.com/codemeet/codemeet-api/databases/mocks"
	"github.com/codemeet/codemeet-api/models"
)

// fakeProvider mints a fixed credential and records the publish flag
type fakeProvider struct {
	lastCanPublish bool
	lastRoomID     string
}

func (f *fakeProvider) JoinCredential(ctx context.Context, roomID, identity, displayName string, canPublish bool) (*media.Credential, error) {
	f.lastCanPublish = canPublish
	f.lastRoomID = roomID
	return &media.Credential{Token: "signed-token", URL: "wss://media.test"}, nil
}

func roomFixture(session *models.Session, banCount int64, store grants.Store, provider media.Provider) handlers.Room {
	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	modDB := &mocks.ModerationDatabase{}
	modDB.On("CountDocuments", mock.Anything, moderationCountFor(models.ModerationKindBan)).Return(banCount, nil)

	return handlers.Room{SDB: sessionDB, MDB: modDB, Grants: store, Provider: provider}
}

func join(t *testing.T, rm handlers.Room, session *models.Session, callerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/join",
		bytes.NewBufferString(body), callerID, "Caller",
		map[string]string{"session_id": session.ID.Hex()})
	rr := httptest.NewRecorder()
	rm.JoinSessionHandler(rr, req)
	return rr
}

func decodeJoin(t *testing.T, rr *httptest.ResponseRecorder) (resp struct {
	Token       string      `json:"token"`
	URL         string      `json:"url"`
	Role        models.Role `json:"role"`
	Identity    string      `json:"identity"`
	DisplayName string      `json:"displayName"`
}) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestRoom_JoinSessionHandlerHostGetsRequestedRole(t *testing.T) {
	session := sessionFixture("host-1")
	provider := &fakeProvider{}
	rm := roomFixture(session, 0, grants.NewMemoryStore(), provider)

	rr := join(t, rm, session, "host-1", `{"role": "host"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeJoin(t, rr)
	assert.Equal(t, models.RoleHost, resp.Role)
	assert.Equal(t, "signed-token", resp.Token)
	assert.True(t, provider.lastCanPublish)
	assert.Equal(t, session.Details.RoomID, provider.lastRoomID)
}

func TestRoom_JoinSessionHandlerViewerDefaultsToSubscriber(t *testing.T) {
	session := sessionFixture("host-1")
	provider := &fakeProvider{}
	rm := roomFixture(session, 0, grants.NewMemoryStore(), provider)

	rr := join(t, rm, session, "viewer-1", `{}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeJoin(t, rr)
	assert.Equal(t, models.RoleSubscriber, resp.Role)
	assert.False(t, provider.lastCanPublish)
}

func TestRoom_JoinSessionHandlerGrantIsSingleUse(t *testing.T) {
	session := sessionFixture("host-1")
	store := grants.NewMemoryStore()
	assert.NoError(t, store.Grant(context.Background(), session.ID.Hex(), "viewer-1", grants.DefaultTTL))

	rm := roomFixture(session, 0, store, &fakeProvider{})

	// first publisher-role join consumes the grant
	rr := join(t, rm, session, "viewer-1", `{"role": "publisher"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.RolePublisher, decodeJoin(t, rr).Role)

	// the second one falls back to subscriber
	rr = join(t, rm, session, "viewer-1", `{"role": "publisher"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.RoleSubscriber, decodeJoin(t, rr).Role)
}

func TestRoom_JoinSessionHandlerSubscriberJoinKeepsGrant(t *testing.T) {
	session := sessionFixture("host-1")
	store := grants.NewMemoryStore()
	assert.NoError(t, store.Grant(context.Background(), session.ID.Hex(), "viewer-1", grants.DefaultTTL))

	rm := roomFixture(session, 0, store, &fakeProvider{})

	// joining as subscriber must not burn the outstanding grant
	rr := join(t, rm, session, "viewer-1", `{}`)
	assert.Equal(t, models.RoleSubscriber, decodeJoin(t, rr).Role)

	rr = join(t, rm, session, "viewer-1", `{"role": "publisher"}`)
	assert.Equal(t, models.RolePublisher, decodeJoin(t, rr).Role)
}

func TestRoom_JoinSessionHandlerBanned(t *testing.T) {
	session := sessionFixture("host-1")
	rm := roomFixture(session, 1, grants.NewMemoryStore(), &fakeProvider{})

	rr := join(t, rm, session, "viewer-1", `{}`)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRoom_JoinSessionHandlerAnonymousIdentity(t *testing.T) {
	session := sessionFixture("host-1")
	rm := roomFixture(session, 0, grants.NewMemoryStore(), &fakeProvider{})

	rr := join(t, rm, session, "viewer-1", `{"isAnonymous": true}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeJoin(t, rr)
	assert.NotEqual(t, "viewer-1", resp.Identity)
	assert.Contains(t, resp.Identity, "anon-")
	assert.Contains(t, resp.DisplayName, "Guest-")
}

func TestRoom_JoinSessionHandlerProviderNotConfigured(t *testing.T) {
	session := sessionFixture("host-1")
	rm := roomFixture(session, 0, grants.NewMemoryStore(), media.NewJWTProvider("", "", ""))

	rr := join(t, rm, session, "viewer-1", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRoom_PromoteUserHandler(t *testing.T) {
	session := sessionFixture("host-1")
	store := grants.NewMemoryStore()

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	rm := handlers.Room{SDB: sessionDB, Grants: store}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/promote/viewer-1", nil,
		"host-1", "Ada",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-1"})
	rr := httptest.NewRecorder()

	rm.PromoteUserHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	consumed, err := store.Consume(context.Background(), session.ID.Hex(), "viewer-1")
	assert.NoError(t, err)
	assert.True(t, consumed)
}

func TestRoom_PromoteUserHandlerNotHost(t *testing.T) {
	session := sessionFixture("host-1")
	store := grants.NewMemoryStore()

	sessionDB := &mocks.SessionDatabase{}
	sessionDB.On("FindOne", mock.Anything, mock.Anything).Return(session, nil)

	rm := handlers.Room{SDB: sessionDB, Grants: store}

	req := authedRequest("POST", "/api/v1/sessions/"+session.ID.Hex()+"/promote/viewer-2", nil,
		"viewer-1", "Eve",
		map[string]string{"session_id": session.ID.Hex(), "user_id": "viewer-2"})
	rr := httptest.NewRecorder()

	rm.PromoteUserHandler(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)

	consumed, _ := store.Consume(context.Background(), session.ID.Hex(), "viewer-2")
	assert.False(t, consumed, "no grant must be created by a non-host")
}
