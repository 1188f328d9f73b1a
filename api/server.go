package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wricardo/mcp-training/gridduel/game/account"
	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/matchmaking"
	"github.com/wricardo/mcp-training/gridduel/game/negotiation"
	"github.com/wricardo/mcp-training/gridduel/game/service"
)

// Matchmaker is implemented by matchmaking.Coordinator.
type Matchmaker interface {
	Join(ctx context.Context, participantID, displayName string) (*matchmaking.JoinResult, error)
	Leave(participantID string) bool
	Status(participantID string) matchmaking.Status
}

// Negotiator is implemented by negotiation.Negotiator.
type Negotiator interface {
	Invite(ctx context.Context, req negotiation.InviteRequest) (*engine.Session, error)
	Accept(ctx context.Context, sessionID, userID string) (*engine.Session, error)
	Decline(ctx context.Context, sessionID, userID string) error
	PendingInvitations(ctx context.Context, userID string) ([]*engine.Session, error)
	RequestRematch(ctx context.Context, req negotiation.RematchRequest) (*negotiation.RematchResult, error)
	AcceptRematch(ctx context.Context, sessionID, userID string) (*engine.Session, error)
	DeclineRematch(ctx context.Context, sessionID, userID string) error
}

// Users is implemented by account.Store.
type Users interface {
	account.Directory
	CreateUser(ctx context.Context, id, displayName string) (*account.User, error)
	AddFriendship(ctx context.Context, a, b string) error
	Friends(ctx context.Context, userID string) ([]string, error)
}

// Deps are the collaborators the server routes to. All are required except
// Hub and Logger; a nil Hub disables /ws.
type Deps struct {
	Service    service.GameService
	Matchmaker Matchmaker
	Negotiator Negotiator
	Users      Users
	Hub        http.Handler
	Logger     *slog.Logger
}

// Server represents the REST API server
type Server struct {
	service    service.GameService
	matchmaker Matchmaker
	negotiator Negotiator
	users      Users
	router     *mux.Router
	logger     *slog.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service:    deps.Service,
		matchmaker: deps.Matchmaker,
		negotiator: deps.Negotiator,
		users:      deps.Users,
		router:     mux.NewRouter(),
		logger:     logger,
	}

	s.setupRoutes()
	if deps.Hub != nil {
		s.router.Handle("/ws", deps.Hub)
	}
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Presets
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")
	api.HandleFunc("/presets", s.handleSavePreset).Methods("POST")

	// Sessions
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/moves", s.handleMove).Methods("POST")
	api.HandleFunc("/sessions/{id}/forfeit", s.handleForfeit).Methods("POST")

	// Users
	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/users/{id}/friends", s.handleAddFriend).Methods("POST")
	api.HandleFunc("/users/{id}/friends", s.handleListFriends).Methods("GET")
	api.HandleFunc("/users/{id}/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/users/{id}/invitations", s.handlePendingInvitations).Methods("GET")

	// Matchmaking
	api.HandleFunc("/matchmaking/join", s.handleMatchmakingJoin).Methods("POST")
	api.HandleFunc("/matchmaking/leave", s.handleMatchmakingLeave).Methods("POST")
	api.HandleFunc("/matchmaking/status", s.handleMatchmakingStatus).Methods("GET")

	// Invitations and rematches
	api.HandleFunc("/invitations", s.handleInvite).Methods("POST")
	api.HandleFunc("/invitations/{id}/accept", s.handleAcceptInvitation).Methods("POST")
	api.HandleFunc("/invitations/{id}/decline", s.handleDeclineInvitation).Methods("POST")
	api.HandleFunc("/rematch", s.handleRequestRematch).Methods("POST")
	api.HandleFunc("/sessions/{id}/rematch/accept", s.handleAcceptRematch).Methods("POST")
	api.HandleFunc("/sessions/{id}/rematch/decline", s.handleDeclineRematch).Methods("POST")
}

// Handle mounts an extra handler, such as the MCP endpoint.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code gameerr.Code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": string(code)})
}

// respondDomainError maps an error to its status. Errors outside the
// taxonomy are logged and reported without detail.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *gameerr.Error
	if !errors.As(err, &domainErr) || domainErr.Kind() == gameerr.KindInternal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, gameerr.CodeUnknown, "internal error")
		return
	}
	if domainErr.Kind() == gameerr.KindUnavailable {
		s.logger.Warn("store unavailable", "path", r.URL.Path, "error", err)
	}
	respondError(w, domainErr.Kind().HTTPStatus(), domainErr.Code, domainErr.Error())
}

// decode reads a JSON body. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, gameerr.CodeInvalidInput, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Preset Handlers

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.service.ListPresets(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	defaultID := ""
	if def := s.service.DefaultPreset(r.Context()); def != nil {
		defaultID = def.ID
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets": presets,
		"default": defaultID,
	})
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var preset config.Preset
	if !decode(w, r, &preset) {
		return
	}

	if err := s.service.SavePreset(r.Context(), preset.ID, &preset); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Preset saved successfully",
		"preset_id": preset.ID,
	})
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.service.CreateSession(r.Context(), req)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	participantID := r.URL.Query().Get("participant_id")

	if err := s.service.DeleteSession(r.Context(), sessionID, participantID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*engine.Session{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		ParticipantID string `json:"participant_id"`
		Cell          *int   `json:"cell"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Cell == nil {
		respondError(w, http.StatusBadRequest, gameerr.CodeInvalidInput, "cell is required")
		return
	}

	sess, err := s.service.ApplyMove(r.Context(), sessionID, req.ParticipantID, *req.Cell)
	if err != nil {
		s.logger.Info(fmt.Sprintf("[MOVE] session=%s participant=%s cell=%d rejected=%s",
			sessionID, req.ParticipantID, *req.Cell, gameerr.CodeOf(err)))
		s.respondDomainError(w, r, err)
		return
	}

	// Compact server log for observability
	s.logger.Info(fmt.Sprintf("[MOVE] session=%s participant=%s cell=%d status=%s turn=%s",
		sessionID, req.ParticipantID, *req.Cell, sess.Status, sess.CurrentTurn))

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		ParticipantID string `json:"participant_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.service.Forfeit(r.Context(), sessionID, req.ParticipantID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	s.logger.Info("session forfeited", "session", sessionID, "participant", req.ParticipantID, "status", sess.Status)
	respondJSON(w, http.StatusOK, sess)
}
