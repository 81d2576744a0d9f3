package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/api/grants"
	"github.com/codemeet/codemeet-api/api/media"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

// Room exported for testing purposes
type Room struct {
	SDB      databases.SessionDatabase
	MDB      databases.ModerationDatabase
	Grants   grants.Store
	Provider media.Provider
}

// resolveRole maps a join request onto the closed role set. The host gets
// exactly what it asked for; anyone else gets publisher only by consuming an
// outstanding promotion grant, and subscriber otherwise.
func resolveRole(ctx context.Context, session *models.Session, callerID string, requested models.Role, store grants.Store) models.Role {
	if callerID == session.Details.HostID {
		return requested
	}
	if requested == models.RolePublisher {
		consumed, err := store.Consume(ctx, session.ID.Hex(), callerID)
		if err != nil {
			zap.S().Errorw("failed to consume promotion grant",
				"sessionID", session.ID.Hex(),
				"error", err)
			return models.RoleSubscriber
		}
		if consumed {
			return models.RolePublisher
		}
	}
	return models.RoleSubscriber
}

type joinRequest struct {
	Role        string `json:"role"`
	IsAnonymous bool   `json:"isAnonymous"`
	DisplayName string `json:"displayName"`
}

type joinResponse struct {
	Token       string      `json:"token"`
	URL         string      `json:"url"`
	Role        models.Role `json:"role"`
	Identity    string      `json:"identity"`
	DisplayName string      `json:"displayName"`
}

// JoinSessionHandler resolves the caller's role and mints a signed media
// join credential. Anonymous joins get a synthetic room identity so the
// real caller id never reaches other participants.
func (rm Room) JoinSessionHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	var body joinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := findSession(ctx, rm.SDB, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return
	}

	gate := moderationGate{MDB: rm.MDB}
	if gateErr := gate.checkJoin(ctx, session, caller.ID); gateErr != nil {
		config.ErrorStatus(gateErr.message, gateErr.status, w, gateErr.err)
		return
	}

	role := resolveRole(ctx, session, caller.ID, models.ParseRole(body.Role), rm.Grants)

	identity := caller.ID
	displayName := caller.Name
	if body.DisplayName != "" {
		displayName = body.DisplayName
	}
	if body.IsAnonymous {
		identity = "anon-" + uuid.NewString()
		displayName = anonymousName(body.DisplayName)
	}

	cred, err := rm.Provider.JoinCredential(ctx, session.Details.RoomID, identity, displayName, role.CanPublish())
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			config.ErrorStatus("media provider unavailable", http.StatusServiceUnavailable, w, err)
			return
		}
		config.ErrorStatus("failed to issue join credential", http.StatusServiceUnavailable, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(joinResponse{
		Token:       cred.Token,
		URL:         cred.URL,
		Role:        role,
		Identity:    identity,
		DisplayName: displayName,
	})
}

// PromoteUserHandler creates a single-use, time-boxed publisher grant for a
// viewer (host-only). The viewer redeems it on their next publisher-role
// join request.
func (rm Room) PromoteUserHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, rm.SDB)
	if !ok {
		return
	}

	targetID := mux.Vars(r)["user_id"]
	if targetID == "" {
		config.ErrorStatus("missing target user ID", http.StatusBadRequest, w, errMissingTarget)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := rm.Grants.Grant(ctx, session.ID.Hex(), targetID, grants.DefaultTTL); err != nil {
		config.ErrorStatus("failed to create promotion grant", http.StatusServiceUnavailable, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":   "promotion granted",
		"userID":    targetID,
		"expiresIn": grants.DefaultTTL.Seconds(),
	})
}
