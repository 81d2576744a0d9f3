package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

// Session exported for testing purposes
type Session struct {
	DB databases.SessionDatabase
}

type createSessionRequest struct {
	Title        string `json:"title"`
	ScheduledFor string `json:"scheduledFor"`
	CodeLanguage string `json:"codeLanguage"`
}

// CreateSessionHandler creates a new co-coding session in the scheduled
// state, owned by the caller, with a fresh unguessable room id
func (s Session) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	session := models.Session{ID: primitive.NewObjectID()}
	now := primitive.NewDateTimeFromTime(time.Now())
	session.Details = models.SessionDetails{
		HostID:       caller.ID,
		HostName:     caller.Name,
		Title:        body.Title,
		RoomID:       uuid.NewString(),
		CodeLanguage: body.CodeLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// scheduledFor arrives as an ISO string; the stored field is a mongo date
	if body.ScheduledFor != "" {
		t, err := time.Parse(time.RFC3339, body.ScheduledFor)
		if err != nil {
			config.ErrorStatus("invalid scheduledFor timestamp", http.StatusBadRequest, w, err)
			return
		}
		scheduled := primitive.NewDateTimeFromTime(t)
		session.Details.ScheduledFor = &scheduled
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	_, err := s.DB.InsertOne(ctx, session)
	if err != nil {
		config.ErrorStatus("failed to create session", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session.Public())
}

// SessionByIDHandler returns a session by ID
func (s Session) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dbResp, err := findSession(ctx, s.DB, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dbResp.Public())
}

// SessionsHandler returns paginated sessions, optionally filtered by the
// derived lifecycle status
func (s Session) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	hostID := r.URL.Query().Get("hostId")
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 10
	}
	limit64 := int64(Limit)
	Page := getPage(0, r)
	skip64 := int64(Page * Limit)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	filter := bson.M{}
	switch status {
	case models.SessionStatusScheduled:
		filter["session.startedAt"] = nil
	case models.SessionStatusLive:
		filter["session.startedAt"] = bson.M{"$ne": nil}
		filter["session.endedAt"] = nil
	case models.SessionStatusEnded:
		filter["session.endedAt"] = bson.M{"$ne": nil}
	}
	if hostID != "" {
		filter["session.hostID"] = hostID
	}

	type findResult struct {
		sessions []models.Session
		err      error
	}
	type countResult struct {
		count int64
		err   error
	}

	findChan := make(chan findResult, 1)
	countChan := make(chan countResult, 1)

	go func() {
		sessions, err := s.DB.Find(ctx, filter, &options.FindOptions{
			Limit: &limit64,
			Skip:  &skip64,
			Sort:  bson.M{"_id": -1},
		})
		findChan <- findResult{sessions: sessions, err: err}
	}()

	go func() {
		count, err := s.DB.CountDocuments(ctx, filter)
		countChan <- countResult{count: count, err: err}
	}()

	findRes := <-findChan
	countRes := <-countChan

	if findRes.err != nil {
		config.ErrorStatus("failed to get sessions", http.StatusNotFound, w, findRes.err)
		return
	}

	views := make([]models.SessionView, 0, len(findRes.sessions))
	for _, session := range findRes.sessions {
		views = append(views, session.Public())
	}

	var totalCount int64
	if countRes.err != nil {
		totalCount = int64(len(views))
	} else {
		totalCount = countRes.count
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(Limit)))

	response := map[string]interface{}{
		"data":       views,
		"page":       Page,
		"limit":      Limit,
		"totalCount": totalCount,
		"totalPages": totalPages,
	}

	b, err := json.Marshal(response)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// StartSessionHandler transitions a scheduled session to live. The write is
// conditional on startedAt still being unset, so of two concurrent duplicate
// calls exactly one wins and the other gets a conflict.
func (s Session) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, s.DB)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	now := primitive.NewDateTimeFromTime(time.Now())
	res, err := s.DB.UpdateOne(ctx,
		bson.M{"_id": session.ID, "session.startedAt": nil},
		bson.M{"$set": bson.M{
			"session.startedAt": now,
			"session.updatedAt": now,
		}},
	)
	if err != nil {
		config.ErrorStatus("failed to start session", http.StatusInternalServerError, w, err)
		return
	}
	if res.ModifiedCount() == 0 {
		config.ErrorStatus("session has already been started", http.StatusConflict, w, errSessionNotLive)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "session started",
	})
}

// EndSessionHandler transitions a live session to ended (terminal) and
// closes chat in the same write. Conditional on the session being live, for
// the same duplicate-call reason as start.
func (s Session) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, _, ok := loadSessionAsHost(w, r, s.DB)
	if !ok {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	now := primitive.NewDateTimeFromTime(time.Now())
	res, err := s.DB.UpdateOne(ctx,
		bson.M{
			"_id":               session.ID,
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
		config.ErrorStatus("failed to end session", http.StatusInternalServerError, w, err)
		return
	}
	if res.ModifiedCount() == 0 {
		config.ErrorStatus("session is not live", http.StatusConflict, w, errSessionNotLive)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "session ended",
	})
}
