package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shuvam-kayal/Devember-CollabQuest/services"

	"github.com/gorilla/mux"
)

type TaskHandler struct {
	Service *services.TaskService
	Teams   *services.TeamService
}

func NewTaskHandler(service *services.TaskService, teams *services.TeamService) *TaskHandler {
	return &TaskHandler{Service: service, Teams: teams}
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	team, err := h.Teams.GetTeam(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskViews(team, time.Now()))
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Description string    `json:"description"`
		AssigneeID  string    `json:"assignee_id"`
		Deadline    time.Time `json:"deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	task, err := h.Service.CreateTask(r.Context(), mux.Vars(r)["id"], actorID, body.Description, body.AssigneeID, body.Deadline)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.DeleteTask(r.Context(), vars["id"], actorID, vars["taskId"])
	writeOutcome(w, outcome, err)
}

func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.SubmitTask(r.Context(), vars["id"], actorID, vars["taskId"])
	writeOutcome(w, outcome, err)
}

func (h *TaskHandler) VerifyTask(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.VerifyTask(r.Context(), vars["id"], actorID, vars["taskId"])
	writeOutcome(w, outcome, err)
}

func (h *TaskHandler) RequestRework(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.RequestRework(r.Context(), vars["id"], actorID, vars["taskId"])
	writeOutcome(w, outcome, err)
}

func (h *TaskHandler) InitiateExtension(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var body struct {
		NewDeadline time.Time `json:"new_deadline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.InitiateExtension(r.Context(), vars["id"], actorID, vars["taskId"], body.NewDeadline)
	writeOutcome(w, outcome, err)
}

func (h *TaskHandler) VoteExtension(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	outcome, err := h.Service.VoteExtension(r.Context(), vars["id"], actorID, vars["taskId"], decision)
	writeOutcome(w, outcome, err)
}
