package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/alfredchat/alfred/internal/app/auth"
	"github.com/alfredchat/alfred/internal/app/domain/user"
	"github.com/alfredchat/alfred/internal/app/metrics"
	"github.com/alfredchat/alfred/internal/app/services/chat"
	"github.com/alfredchat/alfred/internal/httputil"
	"github.com/alfredchat/alfred/internal/middleware"
	"github.com/alfredchat/alfred/pkg/logger"
)

const defaultMaxUpload = 10 << 20

// Options wires the HTTP surface.
type Options struct {
	Chat     *chat.Service
	Sessions *auth.Manager
	Logger   *logger.Logger
	Location *time.Location

	// LoginLimiter guards POST /login; ChatLimiter guards the AI endpoints. Either may be nil.
	LoginLimiter *middleware.RateLimiter
	ChatLimiter  *middleware.RateLimiter

	MaxUploadBytes int64
	AuditCapacity  int
	AuditSink      AuditSink
}

// handler bundles HTTP endpoints for the chat application.
type handler struct {
	chat      *chat.Service
	sessions  *auth.Manager
	views     *views
	audit     *auditLog
	log       *logger.Logger
	maxUpload int64
}

// NewHandler returns the router serving pages, JSON endpoints, health and metrics.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("http")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	v, err := loadViews(opts.Location)
	if err != nil {
		return nil, err
	}

	h := &handler{
		chat:      opts.Chat,
		sessions:  opts.Sessions,
		views:     v,
		audit:     newAuditLog(opts.AuditCapacity, opts.AuditSink, opts.Logger.Named("audit")),
		log:       opts.Logger,
		maxUpload: opts.MaxUploadBytes,
	}
	sess := middleware.NewSessionMiddleware(opts.Sessions, opts.Logger)

	limit := func(rl *middleware.RateLimiter, next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return rl.Handler(next)
	}

	r := mux.NewRouter()
	r.Use(
		middleware.TracingMiddleware,
		middleware.MetricsMiddleware(),
		middleware.LoggingMiddleware(opts.Logger),
		middleware.Recovery(opts.Logger),
		sess.Handler,
	)

	r.Handle("/healthz", http.HandlerFunc(h.healthz)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/", h.landing).Methods(http.MethodGet)
	r.HandleFunc("/login", h.loginPage).Methods(http.MethodGet)
	r.Handle("/login", limit(opts.LoginLimiter, http.HandlerFunc(h.login))).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodGet)

	r.Handle("/chat", sess.RequirePage(http.HandlerFunc(h.chatPage))).Methods(http.MethodGet)
	r.Handle("/settings", sess.RequirePage(http.HandlerFunc(h.settings))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/audiochat", sess.RequirePage(http.HandlerFunc(h.audioChatPage))).Methods(http.MethodGet)
	r.Handle("/admin/create-user", sess.RequireAdmin(http.HandlerFunc(h.adminCreateUser))).Methods(http.MethodGet, http.MethodPost)

	r.Handle("/chat", sess.RequireAPI(limit(opts.ChatLimiter, http.HandlerFunc(h.chatMessage)))).Methods(http.MethodPost)
	r.Handle("/transcribe_and_chat", sess.RequireAPI(limit(opts.ChatLimiter, http.HandlerFunc(h.transcribeAndChat)))).Methods(http.MethodPost)
	r.Handle("/clear-history", sess.RequireAPI(http.HandlerFunc(h.clearHistory))).Methods(http.MethodPost)

	return r, nil
}

// Pages ----------------------------------------------------------------------

func (h *handler) landing(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/chat", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "landing", page{Title: "Welcome"})
}

func (h *handler) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/chat", http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login", page{Title: "Log in"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.FromContext(r.Context()); ok {
		http.Redirect(w, r, "/chat", http.StatusFound)
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	id, err := h.chat.Authenticate(r.Context(), username, password)
	if err != nil {
		status := http.StatusOK
		msg := "Invalid username or password."
		if errors.Is(err, chat.ErrInvalidCredentials) {
			h.record(r, username, auditLoginFailed, "")
		} else {
			h.log.WithContext(r.Context()).WithError(err).Error("Login failed")
			status = http.StatusServiceUnavailable
			msg = "Login is temporarily unavailable. Please try again."
		}
		h.render(w, r, status, "login", page{Title: "Log in"}, auth.Flash{Category: auth.FlashDanger, Message: msg})
		return
	}

	if _, err := h.sessions.Issue(w, id.Username, id.IsAdmin); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("Issue session")
		h.render(w, r, http.StatusInternalServerError, "login", page{Title: "Log in"},
			auth.Flash{Category: auth.FlashDanger, Message: "Could not start a session."})
		return
	}
	h.record(r, id.Username, auditLogin, "")
	h.sessions.AddFlash(w, r, auth.Flash{Category: auth.FlashSuccess, Message: "Logged in successfully!"})
	http.Redirect(w, r, "/chat", http.StatusFound)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.sessions.Clear(w, r); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("Session revocation failed")
	}
	if id.Username != "" {
		h.record(r, id.Username, auditLogout, "")
	}
	h.sessions.AddFlash(w, r, auth.Flash{Category: auth.FlashInfo, Message: "You have been logged out."})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *handler) chatPage(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var flashes []auth.Flash

	history, err := h.chat.History(r.Context(), id.Username)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("Error loading chat history")
		flashes = append(flashes, auth.Flash{Category: auth.FlashDanger, Message: "Error loading chat history."})
	}
	h.render(w, r, http.StatusOK, "chat", page{Title: "Chat", History: history}, flashes...)
}

func (h *handler) settings(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	ctx := r.Context()
	var flashes []auth.Flash

	if r.Method == http.MethodPost {
		update := user.Profile{
			AgentPersona:        r.PostFormValue("agent_persona"),
			AgentGoal:           r.PostFormValue("agent_goal"),
			SpecialInstructions: r.PostFormValue("special_instructions"),
			UserDisplayName:     r.PostFormValue("user_display_name"),
		}
		if _, err := h.chat.UpdateSettings(ctx, id.Username, update); err != nil {
			h.log.WithContext(ctx).WithError(err).Error("Error updating user profile")
			flashes = append(flashes, auth.Flash{Category: auth.FlashDanger, Message: fmt.Sprintf("Failed to save settings: %v", err)})
		} else {
			h.record(r, id.Username, auditSettingsSaved, "")
			flashes = append(flashes, auth.Flash{Category: auth.FlashSuccess, Message: "Settings saved!"})
		}
	}

	profile, err := h.chat.Settings(ctx, id.Username)
	if err != nil {
		h.log.WithContext(ctx).WithError(err).Error("Error loading user profile")
		flashes = append(flashes, auth.Flash{Category: auth.FlashDanger, Message: "Error loading settings."})
	}
	h.render(w, r, http.StatusOK, "settings", page{Title: "Settings", Profile: profile}, flashes...)
}

func (h *handler) audioChatPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "audiochat", page{Title: "Voice chat"})
}

func (h *handler) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	ctx := r.Context()
	var flashes []auth.Flash

	if r.Method == http.MethodPost {
		username := strings.TrimSpace(r.PostFormValue("username"))
		password := r.PostFormValue("password")
		err := h.chat.CreateOrUpdateUser(ctx, username, password, nil)
		switch {
		case err == nil:
			h.record(r, id.Username, auditUserSaved, username)
			flashes = append(flashes, auth.Flash{Category: auth.FlashSuccess,
				Message: fmt.Sprintf("User '%s' created/updated: User created/updated successfully.", username)})
		case errors.Is(err, chat.ErrMissingFields):
			flashes = append(flashes, auth.Flash{Category: auth.FlashDanger, Message: "Username and password are required."})
		case errors.Is(err, chat.ErrUnauthorizedUsername):
			h.record(r, id.Username, auditUserRejected, username)
			flashes = append(flashes, auth.Flash{Category: auth.FlashDanger,
				Message: fmt.Sprintf("Error creating/updating user '%s': Unauthorized username.", username)})
		default:
			h.log.WithContext(ctx).WithError(err).Error("Error creating/updating user")
			flashes = append(flashes, auth.Flash{Category: auth.FlashDanger,
				Message: fmt.Sprintf("Error creating/updating user '%s': %v", username, err)})
		}
	}

	users, err := h.chat.Users(ctx)
	if err != nil {
		h.log.WithContext(ctx).WithError(err).Error("Error fetching user list for admin page")
		flashes = append(flashes, auth.Flash{Category: auth.FlashDanger, Message: fmt.Sprintf("Error fetching user list: %v", err)})
	}
	h.render(w, r, http.StatusOK, "admin_create_user", page{
		Title:            "Users",
		Users:            users,
		AllowedUsernames: h.chat.AllowedUsernames(),
		Audit:            h.audit.recent(0),
	}, flashes...)
}

// JSON endpoints -------------------------------------------------------------

func (h *handler) chatMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var payload struct {
		Message string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if !h.chat.AIAvailable() {
		httputil.WriteError(w, http.StatusServiceUnavailable, "AI service not available.")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		httputil.BadRequest(w, "message is required")
		return
	}

	reply, err := h.chat.Chat(r.Context(), id.Username, payload.Message)
	if err != nil {
		if errors.Is(err, chat.ErrAIUnavailable) {
			httputil.WriteError(w, http.StatusServiceUnavailable, "AI service not available.")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (h *handler) transcribeAndChat(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, _, err := r.FormFile("audio_data")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "Audio file is too large")
			return
		}
		httputil.BadRequest(w, "No audio file found")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "Could not read audio file")
		return
	}

	out, err := h.chat.TranscribeAndChat(r.Context(), id.Username, audio)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, out)
	case errors.Is(err, chat.ErrNoSpeech):
		httputil.BadRequest(w, "Could not understand audio")
	case errors.Is(err, chat.ErrAIUnavailable):
		httputil.WriteError(w, http.StatusServiceUnavailable, "AI service not available.")
	default:
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handler) clearHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	n, err := h.chat.ClearHistory(r.Context(), id.Username)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("Error clearing history")
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.record(r, id.Username, auditHistoryCleared, fmt.Sprintf("%d messages", n))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "deleted_count": n})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.chat.Ping(ctx); err != nil {
		h.log.WithContext(ctx).WithError(err).Warn("Health check failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ai": h.chat.AIAvailable()})
}

// helpers ----------------------------------------------------------------------

// render fills the session fields, prepends pending flashes to extra and writes the page.
func (h *handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data page, extra ...auth.Flash) {
	if id, ok := auth.FromContext(r.Context()); ok {
		data.Username = id.Username
		data.IsAdmin = id.IsAdmin
	}
	data.Flashes = append(h.sessions.PopFlashes(w, r), extra...)

	if err := h.views.render(w, status, name, data); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("Render page")
		http.Error(w, "An internal error occurred.", http.StatusInternalServerError)
	}
}

func (h *handler) record(r *http.Request, username, event, target string) {
	h.audit.add(AuditEntry{
		User:       username,
		Event:      event,
		Target:     target,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
}
