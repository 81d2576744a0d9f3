package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
)

const maxCodeContentLength = 200000

// Code exported for testing purposes
type Code struct {
	SDB databases.SessionDatabase
}

// CodeSnapshotHandler returns the session's shared code buffer
func (c Code) CodeSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := findSession(ctx, c.SDB, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"codeContent":  session.Details.CodeContent,
		"codeLanguage": session.Details.CodeLanguage,
		"updatedAt":    session.Details.UpdatedAt,
	})
}

type replaceCodeRequest struct {
	CodeContent  string `json:"codeContent"`
	CodeLanguage string `json:"codeLanguage"`
}

// ReplaceCodeHandler replaces the session's shared code buffer (host-only).
// The buffer is a whole-snapshot write; the stream channel picks it up on
// the next poll tick.
func (c Code) ReplaceCodeHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, c.SDB)
	if !ok {
		return
	}

	var body replaceCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if len(body.CodeContent) > maxCodeContentLength {
		config.ErrorStatus("code buffer too large", http.StatusBadRequest, w, fmt.Errorf("got %d bytes", len(body.CodeContent)))
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	setFields := bson.M{
		"session.codeContent": body.CodeContent,
		"session.updatedAt":   now,
	}
	if body.CodeLanguage != "" {
		setFields["session.codeLanguage"] = body.CodeLanguage
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	_, err := c.SDB.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{"$set": setFields})
	if err != nil {
		config.ErrorStatus("failed to update code buffer", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "code buffer updated",
	})
}
