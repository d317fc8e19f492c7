package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shuvam-kayal/Devember-CollabQuest/logging"
	"github.com/shuvam-kayal/Devember-CollabQuest/models"
	"github.com/shuvam-kayal/Devember-CollabQuest/services"
	"github.com/shuvam-kayal/Devember-CollabQuest/utils"

	"github.com/gorilla/mux"
)

type TeamHandler struct {
	Service *services.TeamService
}

func NewTeamHandler(service *services.TeamService) *TeamHandler {
	return &TeamHandler{Service: service}
}

type outcomeResponse struct {
	Outcome services.Outcome `json:"outcome"`
}

type decisionRequest struct {
	Decision models.VoteDecision `json:"decision"`
}

type explanationRequest struct {
	Explanation string `json:"explanation"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeOutcome(w http.ResponseWriter, outcome services.Outcome, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Everything in it is a recoverable, user-facing outcome; only unknown
// errors become a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logging.Logger.Errorf("Event ID: UNEXPECTED_SERVICE_ERROR, Description: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// actor resolves the authenticated user or answers 401 itself.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := utils.UserIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func decodeDecision(w http.ResponseWriter, r *http.Request) (models.VoteDecision, bool) {
	var body decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return "", false
	}
	if !body.Decision.Valid() {
		http.Error(w, "decision must be \"approve\" or \"reject\"", http.StatusBadRequest)
		return "", false
	}
	return body.Decision, true
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	team, err := h.Service.CreateTeam(r.Context(), actorID, body.Name, body.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	team, err := h.Service.GetTeam(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Status              *models.TeamStatus `json:"status,omitempty"`
		IsLookingForMembers *bool              `json:"is_looking_for_members,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	outcome, err := h.Service.UpdateTeam(r.Context(), mux.Vars(r)["id"], actorID, body.Status, body.IsLookingForMembers)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) InitiateDeletion(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	outcome, err := h.Service.InitiateDeletion(r.Context(), mux.Vars(r)["id"], actorID)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) VoteDeletion(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	outcome, err := h.Service.VoteDeletion(r.Context(), mux.Vars(r)["id"], actorID, decision)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) InitiateCompletion(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	outcome, err := h.Service.InitiateCompletion(r.Context(), mux.Vars(r)["id"], actorID)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) VoteCompletion(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	outcome, err := h.Service.VoteCompletion(r.Context(), mux.Vars(r)["id"], actorID, decision)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body explanationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	outcome, err := h.Service.InitiateMemberRequest(r.Context(), mux.Vars(r)["id"], actorID, actorID, models.RequestLeave, body.Explanation)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body explanationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.InitiateMemberRequest(r.Context(), vars["id"], actorID, vars["userId"], models.RequestRemove, body.Explanation)
	writeOutcome(w, outcome, err)
}

func (h *TeamHandler) VoteMemberRequest(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.VoteMemberRequest(r.Context(), vars["id"], actorID, vars["requestId"], decision)
	writeOutcome(w, outcome, err)
}
