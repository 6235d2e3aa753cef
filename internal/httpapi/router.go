package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mbartova/medscreen/internal/eventlog"
	"github.com/mbartova/medscreen/internal/llm"
	"github.com/mbartova/medscreen/internal/notifications"
	"github.com/mbartova/medscreen/internal/store"
	"github.com/mbartova/medscreen/internal/stt"
)

type RouterConfig struct {
	// Voice AI providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Coordinator dashboard login
	AdminUsername string
	AdminPassword string

	// Notifications
	DiscordWebhookURL string

	// APNs Push Notifications
	APNsKeyPath    string // Path to .p8 key file
	APNsKeyID      string // Key ID from Apple Developer Portal
	APNsTeamID     string // Team ID from Apple Developer Portal
	APNsBundleID   string // App bundle ID (e.g., com.medscreen.coordinator)
	APNsProduction bool   // Use production environment
}

type Router struct {
	cfg        RouterConfig
	logger     *log.Logger
	store      *store.Store
	eventLog   *eventlog.Logger
	discord    *notifications.Discord
	apns       *notifications.APNsClient
	registry   *SessionRegistry
	transcribe stt.Client
	classifier llm.Client
	judge      llm.Client // nil without an OpenAI key; evaluation then falls back to keyword matching
	mux        *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, registry *SessionRegistry) http.Handler {
	// Initialize APNs client (may be nil if not configured)
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Printf("Warning: APNs client initialization failed: %v", err)
	}

	var classifier, judge llm.Client
	if cfg.OpenAIAPIKey != "" {
		classifier = llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.OpenAIAPIKey})
		judge = classifier
	} else {
		logger.Println("OPENAI_API_KEY not set, using keyword intent classifier")
		classifier = llm.NewKeywordClassifier()
	}

	r := &Router{
		cfg:        cfg,
		logger:     logger,
		store:      s,
		eventLog:   eventLog,
		discord:    notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		apns:       apnsClient,
		registry:   registry,
		transcribe: stt.NewDeepgramClient(stt.DeepgramConfig{APIKey: cfg.DeepgramAPIKey}),
		classifier: classifier,
		judge:      judge,
		mux:        http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Participant session endpoints (public)
	r.mux.HandleFunc("POST /api/session/start", r.handleStartSession)
	r.mux.HandleFunc("POST /api/session/save-progress", r.handleSaveProgress)
	r.mux.HandleFunc("GET /ws/interview", r.handleInterviewWS)

	// Study catalog (public - participants pick a study before starting)
	r.mux.HandleFunc("GET /api/studies", r.handleListStudies)
	r.mux.HandleFunc("GET /api/studies/{id}", r.handleGetStudy)

	// Audio settings (public - participants adjust voice before starting)
	r.mux.HandleFunc("GET /api/audio/settings", r.handleGetAudioSettings)
	r.mux.HandleFunc("POST /api/audio/settings", r.handleSaveAudioSettings)

	// Coordinator auth
	r.mux.HandleFunc("POST /auth/login", r.handleLogin)

	// Push notifications (protected)
	r.mux.HandleFunc("POST /api/push/register", r.withAuth(r.handlePushRegister))
	r.mux.HandleFunc("POST /api/push/unregister", r.withAuth(r.handlePushUnregister))

	// Coordinator dashboard (requires admin token)
	r.mux.HandleFunc("POST /admin/studies", r.withAdmin(r.handleUpsertStudy))
	r.mux.HandleFunc("DELETE /admin/studies/{id}", r.withAdmin(r.handleDeleteStudy))
	r.mux.HandleFunc("GET /admin/interviews", r.withAdmin(r.handleListInterviews))
	r.mux.HandleFunc("GET /admin/interviews/{participantID}", r.withAdmin(r.handleGetInterview))
	r.mux.HandleFunc("DELETE /admin/interviews/{participantID}", r.withAdmin(r.handleDeleteInterview))
	r.mux.HandleFunc("GET /admin/interviews/{participantID}/download", r.withAdmin(r.handleDownloadInterview))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
