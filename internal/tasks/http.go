package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createTaskRequest struct {
	Title string `json:"title"`
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

type statsResponse struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

func RegisterRoutes(r chi.Router, repo Repository) {
	r.Get("/tasks", listTasks(repo))
	r.Post("/tasks", createTask(repo))
	r.Get("/tasks/stats", completionStats(repo))
	r.Put("/tasks/order", reorderTasks(repo))
	r.Post("/tasks/{id}/toggle", toggleTask(repo))
	r.Delete("/tasks/{id}", removeTask(repo))
}

func createTask(repo Repository) http.HandlerFunc {
	const maxTitleLen = 200

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req createTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		if l := len(req.Title); l > maxTitleLen {
			writeJSON(w, http.StatusUnprocessableEntity, errResponse{
				Error: "validation_error",
				Details: []fieldError{{
					Field:   "title",
					Message: fmt.Sprintf("title must be at most %d characters", maxTitleLen),
				}},
			})
			return
		}

		t, err := repo.Add(req.Title)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		if t == nil {
			// blank after trimming: nothing created, by contract
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func listTasks(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		list, err := repo.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		if list == nil {
			list = []Task{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func toggleTask(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id, ok := pathID(w, r)
		if !ok {
			return
		}
		t, err := repo.Toggle(id)
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errResponse{Error: "not_found"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func removeTask(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := repo.Remove(id); err != nil {
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		// idempotent: absent ids delete nothing and still succeed
		w.WriteHeader(http.StatusNoContent)
	}
}

func completionStats(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		done, total, err := repo.Stats()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{Done: done, Total: total})
	}
}

func reorderTasks(repo Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var req reorderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		list, err := repo.Reorder(req.IDs)
		if errors.Is(err, ErrOrderMismatch) {
			// the caller's view is stale; it should re-fetch and retry
			writeJSON(w, http.StatusConflict, errResponse{Error: "order_mismatch"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
