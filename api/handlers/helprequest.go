package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/api/ratelimit"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

const maxHelpDetailsLength = 5000

// HelpRequest exported for testing purposes
type HelpRequest struct {
	DB      databases.HelpRequestDatabase
	SDB     databases.SessionDatabase
	MDB     databases.ModerationDatabase
	Limiter ratelimit.Limiter
}

type postHelpRequest struct {
	Topic         string `json:"topic"`
	Details       string `json:"details"`
	IsAnonymous   bool   `json:"isAnonymous"`
	RequesterName string `json:"requesterName"`
}

// PostHelpRequestHandler records one help request. Mutes deliberately do not
// apply: a muted participant keeps this host-facing channel; bans and
// view-only mode still do.
func (h HelpRequest) PostHelpRequestHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	var body postHelpRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	body.Topic = strings.TrimSpace(body.Topic)
	if body.Topic == "" {
		config.ErrorStatus("help request topic is required", http.StatusBadRequest, w, fmt.Errorf("empty topic"))
		return
	}
	if len(body.Details) > maxHelpDetailsLength {
		config.ErrorStatus("help request details too long", http.StatusBadRequest, w, fmt.Errorf("got %d characters", len(body.Details)))
		return
	}

	allowed, err := h.Limiter.Allow(r.Context(), fmt.Sprintf("help:%s:%s", sessionID.Hex(), caller.ID))
	if err != nil {
		config.ErrorStatus("rate limiter unavailable", http.StatusServiceUnavailable, w, err)
		return
	}
	if !allowed {
		config.ErrorStatus("too many help requests", http.StatusTooManyRequests, w, errRateLimited)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := findSession(ctx, h.SDB, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return
	}

	gate := moderationGate{MDB: h.MDB}
	if gateErr := gate.checkHelp(ctx, session, caller.ID); gateErr != nil {
		config.ErrorStatus(gateErr.message, gateErr.status, w, gateErr.err)
		return
	}

	requesterName := caller.Name
	if body.IsAnonymous {
		requesterName = anonymousName(body.RequesterName)
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	req := models.HelpRequest{
		ID: primitive.NewObjectID(),
		Details: models.HelpRequestDetails{
			SessionID:     sessionID.Hex(),
			RequesterID:   caller.ID,
			RequesterName: requesterName,
			IsAnonymous:   body.IsAnonymous,
			Topic:         body.Topic,
			Details:       body.Details,
			Status:        models.HelpRequestStatusOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}

	_, err = h.DB.InsertOne(ctx, req)
	if err != nil {
		config.ErrorStatus("failed to save help request", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req.Public())
}

// HelpRequestsHandler lists help requests for a session, oldest first
func (h HelpRequest) HelpRequestsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	filter := bson.M{"helpRequest.sessionID": sessionID.Hex()}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["helpRequest.status"] = status
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	requests, err := h.DB.Find(ctx, filter, &options.FindOptions{
		Sort: bson.M{"helpRequest.createdAt": 1},
	})
	if err != nil {
		config.ErrorStatus("failed to get help requests", http.StatusInternalServerError, w, err)
		return
	}

	views := make([]models.HelpRequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, req.Public())
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": views,
	})
}

// ResolveHelpRequestHandler moves a help request to resolved (host-only).
// Resolved is terminal, so the write is conditional on the request still
// being open and a duplicate resolve gets a conflict.
func (h HelpRequest) ResolveHelpRequestHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, h.SDB)
	if !ok {
		return
	}

	requestID, err := primitive.ObjectIDFromHex(mux.Vars(r)["request_id"])
	if err != nil {
		config.ErrorStatus("invalid help request ID", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := h.DB.UpdateOne(ctx,
		bson.M{
			"_id":                   requestID,
			"helpRequest.sessionID": session.ID.Hex(),
			"helpRequest.status":    models.HelpRequestStatusOpen,
		},
		bson.M{"$set": bson.M{
			"helpRequest.status":    models.HelpRequestStatusResolved,
			"helpRequest.updatedAt": primitive.NewDateTimeFromTime(time.Now()),
		}},
	)
	if err != nil {
		config.ErrorStatus("failed to resolve help request", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount() == 0 {
		// either the request does not exist in this session or it is already resolved
		count, countErr := h.DB.CountDocuments(ctx, bson.M{
			"_id":                   requestID,
			"helpRequest.sessionID": session.ID.Hex(),
		})
		if countErr == nil && count > 0 {
			config.ErrorStatus("help request is already resolved", http.StatusConflict, w, fmt.Errorf("request %s is resolved", requestID.Hex()))
			return
		}
		config.ErrorStatus("help request not found in session", http.StatusNotFound, w, fmt.Errorf("request %s not in session %s", requestID.Hex(), session.ID.Hex()))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "help request resolved",
	})
}
