package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/codemeet/codemeet-api/api"
	"github.com/codemeet/codemeet-api/api/grants"
	"github.com/codemeet/codemeet-api/api/media"
	"github.com/codemeet/codemeet-api/api/ratelimit"
	"github.com/codemeet/codemeet-api/api/scheduler"
	"github.com/codemeet/codemeet-api/config"
	"github.com/codemeet/codemeet-api/databases"
	"github.com/codemeet/codemeet-api/models"
)

// Posting limits applied per caller per session. Chat and help requests use
// separate buckets so a chatty participant can still raise a hand.
var (
	chatRule = ratelimit.Rule{Rate: 2, Per: 2 * time.Second, Burst: 3}
	helpRule = ratelimit.Rule{Rate: 1, Per: 5 * time.Second, Burst: 2}
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler
	dbHelper  databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{DB: databases.NewUserDatabase(a.dbHelper)}
	m.SetupGoGuardian()

	sessionDB := databases.NewSessionDatabase(a.dbHelper)
	chatDB := databases.NewChatMessageDatabase(a.dbHelper)
	helpDB := databases.NewHelpRequestDatabase(a.dbHelper)
	modDB := databases.NewModerationDatabase(a.dbHelper)
	userDB := databases.NewUserDatabase(a.dbHelper)

	// REDIS_URL switches the keyed stores to shared Redis so multiple
	// instances agree on rate limits and promotion grants
	var chatLimiter, helpLimiter ratelimit.Limiter
	var grantStore grants.Store
	var memGrants *grants.MemoryStore
	var memBuckets []*ratelimit.MemoryLimiter
	if a.Config.RedisURL != "" {
		opts, err := redis.ParseURL(a.Config.RedisURL)
		if err != nil {
			zap.S().Fatalw("failed to parse redis url", "error", err)
		}
		client := redis.NewClient(opts)
		chatLimiter = ratelimit.NewRedisLimiter(client, "rl:chat", chatRule)
		helpLimiter = ratelimit.NewRedisLimiter(client, "rl:help", helpRule)
		grantStore = grants.NewRedisStore(client)
	} else {
		chat := ratelimit.NewMemoryLimiter(chatRule)
		help := ratelimit.NewMemoryLimiter(helpRule)
		chatLimiter, helpLimiter = chat, help
		memBuckets = []*ratelimit.MemoryLimiter{chat, help}
		memGrants = grants.NewMemoryStore()
		grantStore = memGrants
	}

	provider := media.NewJWTProvider(a.Config.MediaAPIKey, a.Config.MediaAPISecret, a.Config.MediaHost)

	s := Session{DB: sessionDB}
	c := Chat{DB: chatDB, SDB: sessionDB, MDB: modDB, Limiter: chatLimiter}
	h := HelpRequest{DB: helpDB, SDB: sessionDB, MDB: modDB, Limiter: helpLimiter}
	code := Code{SDB: sessionDB}
	mod := Moderation{SDB: sessionDB, MDB: modDB}
	room := Room{SDB: sessionDB, MDB: modDB, Grants: grantStore, Provider: provider}
	stream := Stream{SDB: sessionDB, CDB: chatDB, HDB: helpDB}
	webhook := MediaWebhook{SDB: sessionDB, UDB: userDB, Cfg: &a.Config}

	a.Scheduler = scheduler.NewScheduler(sessionDB, userDB, &a.Config, memGrants, memBuckets...)

	r := mux.NewRouter()

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", api.Middleware(http.HandlerFunc(m.CreateToken))).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(api.RevokeToken))).Methods("DELETE")

	apiCreate.Handle("/sessions", api.Middleware(http.HandlerFunc(s.CreateSessionHandler))).Methods("POST")
	apiCreate.Handle("/sessions", http.HandlerFunc(s.SessionsHandler)).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}", http.HandlerFunc(s.SessionByIDHandler)).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}/start", api.Middleware(http.HandlerFunc(s.StartSessionHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/end", api.Middleware(http.HandlerFunc(s.EndSessionHandler))).Methods("POST")

	apiCreate.Handle("/sessions/{session_id}/chat", api.Middleware(http.HandlerFunc(c.PostChatMessageHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/chat", http.HandlerFunc(c.ChatHistoryHandler)).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}/chat/{message_id}/upvote", api.Middleware(http.HandlerFunc(c.UpvoteChatMessageHandler))).Methods("POST")

	apiCreate.Handle("/sessions/{session_id}/help", api.Middleware(http.HandlerFunc(h.PostHelpRequestHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/help", http.HandlerFunc(h.HelpRequestsHandler)).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}/help/{request_id}/resolve", api.Middleware(http.HandlerFunc(h.ResolveHelpRequestHandler))).Methods("POST")

	apiCreate.Handle("/sessions/{session_id}/code", http.HandlerFunc(code.CodeSnapshotHandler)).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}/code", api.Middleware(http.HandlerFunc(code.ReplaceCodeHandler))).Methods("PUT")

	apiCreate.Handle("/sessions/{session_id}/moderation", api.Middleware(http.HandlerFunc(mod.ListModerationHandler))).Methods("GET")
	apiCreate.Handle("/sessions/{session_id}/moderation/toggles", api.Middleware(http.HandlerFunc(mod.SetTogglesHandler))).Methods("PUT")
	apiCreate.Handle("/sessions/{session_id}/moderation/ban/{user_id}", api.Middleware(http.HandlerFunc(mod.BanUserHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/moderation/ban/{user_id}", api.Middleware(http.HandlerFunc(mod.UnbanUserHandler))).Methods("DELETE")
	apiCreate.Handle("/sessions/{session_id}/moderation/mute/{user_id}", api.Middleware(http.HandlerFunc(mod.MuteUserHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/moderation/mute/{user_id}", api.Middleware(http.HandlerFunc(mod.UnmuteUserHandler))).Methods("DELETE")

	apiCreate.Handle("/sessions/{session_id}/promote/{user_id}", api.Middleware(http.HandlerFunc(room.PromoteUserHandler))).Methods("POST")
	apiCreate.Handle("/sessions/{session_id}/join", api.Middleware(http.HandlerFunc(room.JoinSessionHandler))).Methods("POST")

	apiCreate.Handle("/sessions/{session_id}/stream/{kind}", api.Middleware(http.HandlerFunc(stream.SubscribeHandler))).Methods("GET")

	apiCreate.Handle("/media/webhook", http.HandlerFunc(webhook.EventHandler)).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("codemeet-api has connected to the database")

	// initialize api router
	a.initializeRoutes()

	a.Scheduler.Start()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
