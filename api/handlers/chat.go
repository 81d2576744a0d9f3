package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
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

const maxChatBodyLength = 2000

// Chat exported for testing purposes
type Chat struct {
	DB      databases.ChatMessageDatabase
	SDB     databases.SessionDatabase
	MDB     databases.ModerationDatabase
	Limiter ratelimit.Limiter
}

type postChatRequest struct {
	Body        string `json:"body"`
	IsAnonymous bool   `json:"isAnonymous"`
	SenderName  string `json:"senderName"`
}

// PostChatMessageHandler records one chat message. Rate limit and the
// moderation gate both run before anything is written; the stored document
// always carries the real sender id, anonymity only affects the projection.
func (c Chat) PostChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	var body postChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	body.Body = strings.TrimSpace(body.Body)
	if body.Body == "" || len(body.Body) > maxChatBodyLength {
		config.ErrorStatus("message body must be 1-2000 characters", http.StatusBadRequest, w, fmt.Errorf("got %d characters", len(body.Body)))
		return
	}

	allowed, err := c.Limiter.Allow(r.Context(), fmt.Sprintf("chat:%s:%s", sessionID.Hex(), caller.ID))
	if err != nil {
		config.ErrorStatus("rate limiter unavailable", http.StatusServiceUnavailable, w, err)
		return
	}
	if !allowed {
		config.ErrorStatus("too many chat messages", http.StatusTooManyRequests, w, errRateLimited)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := findSession(ctx, c.SDB, sessionID)
	if err != nil {
		config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
		return
	}

	gate := moderationGate{MDB: c.MDB}
	if gateErr := gate.checkChat(ctx, session, caller.ID); gateErr != nil {
		config.ErrorStatus(gateErr.message, gateErr.status, w, gateErr.err)
		return
	}

	senderName := caller.Name
	if body.IsAnonymous {
		senderName = anonymousName(body.SenderName)
	}

	msg := models.ChatMessage{
		ID: primitive.NewObjectID(),
		Details: models.ChatMessageDetails{
			SessionID:   sessionID.Hex(),
			SenderID:    caller.ID,
			SenderName:  senderName,
			IsAnonymous: body.IsAnonymous,
			Body:        body.Body,
			Voters:      []string{},
			SentAt:      primitive.NewDateTimeFromTime(time.Now()),
		},
	}

	_, err = c.DB.InsertOne(ctx, msg)
	if err != nil {
		config.ErrorStatus("failed to save chat message", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg.Public())
}

// ChatHistoryHandler returns chat messages for a session in ascending send
// order, optionally after a ?since= millisecond timestamp
func (c Chat) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			config.ErrorStatus("invalid since timestamp", http.StatusBadRequest, w, err)
			return
		}
	}
	limit64 := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 && parsed < limit64 {
			limit64 = parsed
		}
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	messages, err := c.DB.Find(ctx,
		bson.M{
			"chatMessage.sessionID": sessionID.Hex(),
			"chatMessage.sentAt":    bson.M{"$gt": primitive.DateTime(since)},
		},
		&options.FindOptions{
			Limit: &limit64,
			Sort:  bson.M{"chatMessage.sentAt": 1},
		},
	)
	if err != nil {
		config.ErrorStatus("failed to get chat messages", http.StatusInternalServerError, w, err)
		return
	}

	views := make([]models.ChatMessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, msg.Public())
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": views,
	})
}

// UpvoteChatMessageHandler records the caller's upvote on a message. The
// voter set is a $addToSet write, so repeated votes from the same caller
// never inflate the count.
func (c Chat) UpvoteChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}
	messageID, err := primitive.ObjectIDFromHex(mux.Vars(r)["message_id"])
	if err != nil {
		config.ErrorStatus("invalid message ID", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	// filtering on the session id too keeps a message from being upvoted
	// through a different session's URL
	res, err := c.DB.UpdateOne(ctx,
		bson.M{
			"_id":                   messageID,
			"chatMessage.sessionID": sessionID.Hex(),
		},
		bson.M{"$addToSet": bson.M{"chatMessage.voters": caller.ID}},
	)
	if err != nil {
		config.ErrorStatus("failed to upvote chat message", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount() == 0 {
		config.ErrorStatus("chat message not found in session", http.StatusNotFound, w, fmt.Errorf("message %s not in session %s", messageID.Hex(), sessionID.Hex()))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "vote recorded",
	})
}
