package handlers_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/databases/mocks"
	"github.com/codemeet/codemeet-api/models"
)

var assertAnError = errors.New("mocked-error")

// authedRequest builds a request carrying a verified caller identity, the
// way the auth middleware would attach it, plus any mux path variables
func authedRequest(method, url string, body io.Reader, callerID, callerName string, vars map[string]string) *http.Request {
	if body == nil {
		body = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, url, body)
	req = mux.SetURLVars(req, vars)
	if callerID != "" {
		ctx := api.WithCaller(req.Context(), api.Caller{ID: callerID, Name: callerName})
		req = req.WithContext(ctx)
	}
	return req
}

// sessionFixture returns a live session owned by hostID
func sessionFixture(hostID string) *models.Session {
	now := primitive.NewDateTimeFromTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	started := now
	return &models.Session{
		ID: primitive.NewObjectID(),
		Details: models.SessionDetails{
			HostID:    hostID,
			HostName:  "Host",
			Title:     "Graph algorithms study night",
			RoomID:    "room-fixture",
			StartedAt: &started,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// updateResult builds an update result stub with the given counts
func updateResult(matched, modified int64) *mocks.UpdateResultHelper {
	res := &mocks.UpdateResultHelper{}
	res.On("MatchedCount").Return(matched).Maybe()
	res.On("ModifiedCount").Return(modified).Maybe()
	res.On("UpsertedCount").Return(int64(0)).Maybe()
	return res
}

// moderationCountFor matches the gate's CountDocuments filter for one kind
func moderationCountFor(kind string) interface{} {
	return mock.MatchedBy(func(filter bson.M) bool {
		return filter["moderation.kind"] == kind
	})
}
