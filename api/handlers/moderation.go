package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

// Moderation exported for testing purposes
type Moderation struct {
	SDB databases.SessionDatabase
	MDB databases.ModerationDatabase
}

// gateError couples a rejected posting attempt with its HTTP mapping
type gateError struct {
	status  int
	message string
	err     error
}

// moderationGate evaluates the layered posting policy. Every check keys on
// the authenticated caller id; client-supplied display names never matter
// here, so toggling anonymity cannot evade a ban or mute.
type moderationGate struct {
	MDB databases.ModerationDatabase
}

func (g moderationGate) hasEntry(ctx context.Context, sessionID, userID, kind string) (bool, error) {
	count, err := g.MDB.CountDocuments(ctx, bson.M{
		"moderation.sessionID": sessionID,
		"moderation.userID":    userID,
		"moderation.kind":      kind,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// checkChat applies ban > mute > chat-closed > view-only to a chat post.
// Chat-closed blocks everyone, including the host.
func (g moderationGate) checkChat(ctx context.Context, session *models.Session, callerID string) *gateError {
	banned, err := g.hasEntry(ctx, session.ID.Hex(), callerID, models.ModerationKindBan)
	if err != nil {
		return &gateError{http.StatusServiceUnavailable, "moderation storage unavailable", err}
	}
	if banned {
		return &gateError{http.StatusForbidden, "caller is banned from this session", errBanned}
	}

	muted, err := g.hasEntry(ctx, session.ID.Hex(), callerID, models.ModerationKindMute)
	if err != nil {
		return &gateError{http.StatusServiceUnavailable, "moderation storage unavailable", err}
	}
	if muted {
		return &gateError{http.StatusForbidden, "caller is muted in this session", errMuted}
	}

	if session.Details.IsChatClosed {
		return &gateError{http.StatusForbidden, "chat is closed for this session", errChatClosed}
	}
	if session.Details.IsViewOnly && callerID != session.Details.HostID {
		return &gateError{http.StatusForbidden, "session is in view-only mode", errViewOnly}
	}
	return nil
}

// checkHelp gates a help request: bans and view-only apply, mutes do not.
// A muted participant keeps the host-facing channel.
func (g moderationGate) checkHelp(ctx context.Context, session *models.Session, callerID string) *gateError {
	banned, err := g.hasEntry(ctx, session.ID.Hex(), callerID, models.ModerationKindBan)
	if err != nil {
		return &gateError{http.StatusServiceUnavailable, "moderation storage unavailable", err}
	}
	if banned {
		return &gateError{http.StatusForbidden, "caller is banned from this session", errBanned}
	}

	if session.Details.IsViewOnly && callerID != session.Details.HostID {
		return &gateError{http.StatusForbidden, "session is in view-only mode", errViewOnly}
	}
	return nil
}

// checkJoin gates a join request: only bans apply
func (g moderationGate) checkJoin(ctx context.Context, session *models.Session, callerID string) *gateError {
	banned, err := g.hasEntry(ctx, session.ID.Hex(), callerID, models.ModerationKindBan)
	if err != nil {
		return &gateError{http.StatusServiceUnavailable, "moderation storage unavailable", err}
	}
	if banned {
		return &gateError{http.StatusForbidden, "caller is banned from this session", errBanned}
	}
	return nil
}

type moderationRequest struct {
	Reason string `json:"reason"`
}

func (m Moderation) upsertEntry(w http.ResponseWriter, r *http.Request, kind string) {
	session, caller, ok := loadSessionAsHost(w, r, m.SDB)
	if !ok {
		return
	}

	targetID := mux.Vars(r)["user_id"]
	if targetID == "" {
		config.ErrorStatus("missing target user ID", http.StatusBadRequest, w, errMissingTarget)
		return
	}

	var body moderationRequest
	// reason is optional; an empty body is fine
	_ = json.NewDecoder(r.Body).Decode(&body)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	now := primitive.NewDateTimeFromTime(time.Now())
	upsert := true
	_, err := m.MDB.UpdateOne(ctx,
		bson.M{
			"moderation.sessionID": session.ID.Hex(),
			"moderation.userID":    targetID,
			"moderation.kind":      kind,
		},
		bson.M{
			"$set": bson.M{
				"moderation.reason":      body.Reason,
				"moderation.moderatorID": caller.ID,
			},
			"$setOnInsert": bson.M{
				"_id":                  primitive.NewObjectID(),
				"moderation.createdAt": now,
			},
		},
		&options.UpdateOptions{Upsert: &upsert},
	)
	if err != nil {
		config.ErrorStatus("failed to save moderation entry", http.StatusServiceUnavailable, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": kind + " recorded",
		"userID":  targetID,
	})
}

func (m Moderation) removeEntry(w http.ResponseWriter, r *http.Request, kind string) {
	session, _, ok := loadSessionAsHost(w, r, m.SDB)
	if !ok {
		return
	}

	targetID := mux.Vars(r)["user_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	_, err := m.MDB.DeleteOne(ctx, bson.M{
		"moderation.sessionID": session.ID.Hex(),
		"moderation.userID":    targetID,
		"moderation.kind":      kind,
	})
	if err != nil {
		config.ErrorStatus("failed to remove moderation entry", http.StatusServiceUnavailable, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": kind + " removed",
		"userID":  targetID,
	})
}

// BanUserHandler bans a user from the session (host-only)
func (m Moderation) BanUserHandler(w http.ResponseWriter, r *http.Request) {
	m.upsertEntry(w, r, models.ModerationKindBan)
}

// UnbanUserHandler lifts a ban (host-only)
func (m Moderation) UnbanUserHandler(w http.ResponseWriter, r *http.Request) {
	m.removeEntry(w, r, models.ModerationKindBan)
}

// MuteUserHandler mutes a user in the session (host-only)
func (m Moderation) MuteUserHandler(w http.ResponseWriter, r *http.Request) {
	m.upsertEntry(w, r, models.ModerationKindMute)
}

// UnmuteUserHandler lifts a mute (host-only)
func (m Moderation) UnmuteUserHandler(w http.ResponseWriter, r *http.Request) {
	m.removeEntry(w, r, models.ModerationKindMute)
}

// ListModerationHandler returns all ban/mute entries for the session (host-only)
func (m Moderation) ListModerationHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, m.SDB)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	entries, err := m.MDB.Find(ctx, bson.M{"moderation.sessionID": session.ID.Hex()})
	if err != nil {
		config.ErrorStatus("failed to list moderation entries", http.StatusServiceUnavailable, w, err)
		return
	}
	if entries == nil {
		entries = []models.ModerationEntry{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": entries,
	})
}

type togglesRequest struct {
	IsChatClosed *bool `json:"isChatClosed"`
	IsViewOnly   *bool `json:"isViewOnly"`
	IsStuck      *bool `json:"isStuck"`
}

// SetTogglesHandler partially updates the session-wide moderation toggles
// (host-only). Absent fields are left untouched.
func (m Moderation) SetTogglesHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, m.SDB)
	if !ok {
		return
	}

	var body togglesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	setFields := bson.M{
		"session.updatedAt": now,
	}
	if body.IsChatClosed != nil {
		setFields["session.isChatClosed"] = *body.IsChatClosed
	}
	if body.IsViewOnly != nil {
		setFields["session.isViewOnly"] = *body.IsViewOnly
	}
	if body.IsStuck != nil {
		setFields["session.isStuck"] = *body.IsStuck
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	_, err := m.SDB.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{"$set": setFields})
	if err != nil {
		config.ErrorStatus("failed to update session toggles", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "session toggles updated",
	})
}
