package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

// streamPageSize caps how many records one poll tick may emit
const streamPageSize = 50

// requireCaller pulls the verified caller identity off the request, writing
// a 401 when the middleware did not attach one
func requireCaller(w http.ResponseWriter, r *http.Request) (api.Caller, bool) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing caller identity", http.StatusUnauthorized, w, errUnauthenticated)
		return api.Caller{}, false
	}
	return caller, true
}

// sessionIDFromRequest parses the {session_id} path variable
func sessionIDFromRequest(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(mux.Vars(r)["session_id"])
}

// findSession loads one session by object id
func findSession(ctx context.Context, db databases.SessionDatabase, id primitive.ObjectID) (*models.Session, error) {
	return db.FindOne(ctx, bson.M{"_id": id})
}

// loadSessionAsHost is the shared host-only guard: resolve the session, then
// require the caller to be its host. It writes the error response itself and
// reports success through ok.
func loadSessionAsHost(w http.ResponseWriter, r *http.Request, db databases.SessionDatabase) (*models.Session, api.Caller, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return nil, api.Caller{}, false
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return nil, api.Caller{}, false
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := findSession(ctx, db, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return nil, api.Caller{}, false
	}

	if session.Details.HostID != caller.ID {
		config.ErrorStatus("only the host may perform this action", http.StatusForbidden, w, errNotHost)
		return nil, api.Caller{}, false
	}

	return session, caller, true
}

// getPage parses the ?page query param, falling back to the given default
func getPage(defaultPage int, r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		return defaultPage
	}
	return page
}

// anonymousName returns the display name for an anonymous participant,
// generating a throwaway pseudonym when none was supplied
func anonymousName(supplied string) string {
	supplied = strings.TrimSpace(supplied)
	if supplied != "" {
		return supplied
	}
	return "Guest-" + uuid.NewString()[:8]
}
