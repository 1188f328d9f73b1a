package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
	"github.com/wricardo/mcp-training/gridduel/game/negotiation"
)

// userRequest is the body of endpoints acting on behalf of one user.
type userRequest struct {
	UserID string `json:"user_id"`
}

// User Handlers

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.ID, req.DisplayName)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req struct {
		FriendID string `json:"friend_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := s.users.AddFriendship(r.Context(), userID, req.FriendID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"user_id":   userID,
		"friend_id": req.FriendID,
	})
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	friends, err := s.users.Friends(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if friends == nil {
		friends = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"count":   len(friends),
		"friends": friends,
	})
}

func (s *Server) handlePendingInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.negotiator.PendingInvitations(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if invitations == nil {
		invitations = []*engine.Session{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(invitations),
		"invitations": invitations,
	})
}

// Matchmaking Handlers

func (s *Server) handleMatchmakingJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	name := req.DisplayName
	if strings.TrimSpace(name) == "" && req.UserID != "" {
		if resolved, err := s.users.DisplayName(r.Context(), req.UserID); err == nil {
			name = resolved
		}
	}

	result, err := s.matchmaker.Join(r.Context(), req.UserID, name)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleMatchmakingLeave(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, gameerr.CodeInvalidInput, "user_id is required")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{
		"left": s.matchmaker.Leave(req.UserID),
	})
}

func (s *Server) handleMatchmakingStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.matchmaker.Status(r.URL.Query().Get("user_id")))
}

// Invitation Handlers

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req negotiation.InviteRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.negotiator.Invite(r.Context(), req)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.negotiator.Accept(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.negotiator.Decline(r.Context(), sessionID, req.UserID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Invitation declined",
	})
}

// Rematch Handlers

func (s *Server) handleRequestRematch(w http.ResponseWriter, r *http.Request) {
	var req negotiation.RematchRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.negotiator.RequestRematch(r.Context(), req)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Status == negotiation.RematchAccepted {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

func (s *Server) handleAcceptRematch(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.negotiator.AcceptRematch(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeclineRematch(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.negotiator.DeclineRematch(r.Context(), mux.Vars(r)["id"], req.UserID); err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Rematch declined",
	})
}
