package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
)

// Push channel kinds
const (
	StreamKindChat  = "chat"
	StreamKindCode  = "code"
	StreamKindHelp  = "help"
	StreamKindState = "state"
)

// Poll and heartbeat defaults. Chat and help poll a little faster than the
// code/state snapshots; the heartbeat keeps intermediaries from dropping an
// idle connection.
const (
	defaultFastPollInterval = 1500 * time.Millisecond
	defaultSlowPollInterval = 2 * time.Second
	defaultHeartbeat        = 20 * time.Second
)

// streamFrame is one typed event emitted to the client
type streamFrame struct {
	Type string
	Data interface{}
	TS   primitive.DateTime
}

// Stream serves the long-lived push channels. Each connection polls the
// durable store on its own cursor, so no in-process subscriber registry
// exists and any instance can serve any connection.
type Stream struct {
	SDB databases.SessionDatabase
	CDB databases.ChatMessageDatabase
	HDB databases.HelpRequestDatabase

	// test seams; zero values fall back to the defaults above
	FastPollInterval time.Duration
	SlowPollInterval time.Duration
	HeartbeatEvery   time.Duration
}

func (s Stream) pollInterval(kind string) time.Duration {
	fast := s.FastPollInterval
	if fast <= 0 {
		fast = defaultFastPollInterval
	}
	slow := s.SlowPollInterval
	if slow <= 0 {
		slow = defaultSlowPollInterval
	}
	if kind == StreamKindChat || kind == StreamKindHelp {
		return fast
	}
	return slow
}

func (s Stream) heartbeatInterval() time.Duration {
	if s.HeartbeatEvery <= 0 {
		return defaultHeartbeat
	}
	return s.HeartbeatEvery
}

// SubscribeHandler opens one push channel connection for a session and
// channel kind. Frames are delivered in non-decreasing timestamp order and
// never repeated within the connection; a reconnect with a stale "since"
// value may re-deliver, which is the client's cursor to keep.
func (s Stream) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	switch kind {
	case StreamKindChat, StreamKindCode, StreamKindHelp, StreamKindState:
	default:
		config.ErrorStatus("unknown stream kind", http.StatusBadRequest, w, fmt.Errorf("kind %q", kind))
		return
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		config.ErrorStatus("invalid session ID", http.StatusBadRequest, w, err)
		return
	}

	cursor := primitive.DateTime(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			config.ErrorStatus("invalid since timestamp", http.StatusBadRequest, w, err)
			return
		}
		cursor = primitive.DateTime(since)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		config.ErrorStatus("streaming unsupported by connection", http.StatusInternalServerError, w, fmt.Errorf("response writer is not a flusher"))
		return
	}

	// verify the session exists before committing to the stream
	{
		ctx, cancel := api.WithQueryTimeout(r.Context())
		_, err := findSession(ctx, s.SDB, sessionID)
		cancel()
		if err != nil {
			config.ErrorStatus("failed to find session", http.StatusNotFound, w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	// one poll timer and one heartbeat ticker per connection; both must die
	// with the request context so nothing fires after disconnect
	poll := time.NewTimer(s.pollInterval(kind))
	defer poll.Stop()
	heartbeat := time.NewTicker(s.heartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-poll.C:
			frames, next, err := s.fetch(r.Context(), kind, sessionID, cursor)
			if err != nil {
				// transient read failures are invisible to the client; the
				// next tick retries with the same cursor
				zap.S().Debugw("stream poll failed", "sessionID", sessionID.Hex(), "kind", kind, "error", err)
			} else if len(frames) > 0 {
				for _, frame := range frames {
					b, merr := json.Marshal(frame.Data)
					if merr != nil {
						continue
					}
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Type, b)
				}
				cursor = next
				flusher.Flush()
			}
			// re-arm only after the tick fully completed so ticks never overlap
			poll.Reset(s.pollInterval(kind))
		}
	}
}

// fetch reads the records of one kind newer than the cursor, oldest first,
// capped at streamPageSize, and returns the advanced cursor
func (s Stream) fetch(parent context.Context, kind string, sessionID primitive.ObjectID, cursor primitive.DateTime) ([]streamFrame, primitive.DateTime, error) {
	ctx, cancel := api.WithQueryTimeout(parent)
	defer cancel()

	switch kind {
	case StreamKindChat:
		return s.fetchChat(ctx, sessionID, cursor)
	case StreamKindHelp:
		return s.fetchHelp(ctx, sessionID, cursor)
	case StreamKindCode:
		return s.fetchSessionSnapshot(ctx, sessionID, cursor, StreamKindCode)
	default:
		return s.fetchSessionSnapshot(ctx, sessionID, cursor, StreamKindState)
	}
}

func (s Stream) fetchChat(ctx context.Context, sessionID primitive.ObjectID, cursor primitive.DateTime) ([]streamFrame, primitive.DateTime, error) {
	limit64 := int64(streamPageSize)
	messages, err := s.CDB.Find(ctx,
		bson.M{
			"chatMessage.sessionID": sessionID.Hex(),
			"chatMessage.sentAt":    bson.M{"$gt": cursor},
		},
		&options.FindOptions{
			Limit: &limit64,
			Sort:  bson.M{"chatMessage.sentAt": 1},
		},
	)
	if err != nil {
		return nil, cursor, err
	}

	frames := make([]streamFrame, 0, len(messages))
	next := cursor
	for _, msg := range messages {
		frames = append(frames, streamFrame{Type: StreamKindChat, Data: msg.Public(), TS: msg.Details.SentAt})
		next = msg.Details.SentAt
	}
	return frames, next, nil
}

func (s Stream) fetchHelp(ctx context.Context, sessionID primitive.ObjectID, cursor primitive.DateTime) ([]streamFrame, primitive.DateTime, error) {
	limit64 := int64(streamPageSize)
	requests, err := s.HDB.Find(ctx,
		bson.M{
			"helpRequest.sessionID": sessionID.Hex(),
			"helpRequest.updatedAt": bson.M{"$gt": cursor},
		},
		&options.FindOptions{
			Limit: &limit64,
			Sort:  bson.M{"helpRequest.updatedAt": 1},
		},
	)
	if err != nil {
		return nil, cursor, err
	}

	frames := make([]streamFrame, 0, len(requests))
	next := cursor
	for _, req := range requests {
		frames = append(frames, streamFrame{Type: StreamKindHelp, Data: req.Public(), TS: req.Details.UpdatedAt})
		next = req.Details.UpdatedAt
	}
	return frames, next, nil
}

// fetchSessionSnapshot emits the session document itself when it changed
// since the cursor; the code channel trims the payload to the code buffer
func (s Stream) fetchSessionSnapshot(ctx context.Context, sessionID primitive.ObjectID, cursor primitive.DateTime, kind string) ([]streamFrame, primitive.DateTime, error) {
	session, err := findSession(ctx, s.SDB, sessionID)
	if err != nil {
		return nil, cursor, err
	}
	if session.Details.UpdatedAt <= cursor {
		return nil, cursor, nil
	}

	var data interface{}
	if kind == StreamKindCode {
		data = map[string]interface{}{
			"codeContent":  session.Details.CodeContent,
			"codeLanguage": session.Details.CodeLanguage,
			"updatedAt":    session.Details.UpdatedAt,
		}
	} else {
		view := session.Public()
		// the state channel carries moderation toggles and lifecycle, not
		// the (potentially large) code buffer
		view.CodeContent = ""
		data = view
	}

	return []streamFrame{{Type: kind, Data: data, TS: session.Details.UpdatedAt}}, session.Details.UpdatedAt, nil
}
