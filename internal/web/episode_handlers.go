package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fablecast/server/internal/engine"
	"fablecast/server/internal/models"
	"fablecast/server/internal/storage"
)

// EpisodeStore is the read surface the handlers need.
type EpisodeStore interface {
	GetEpisode(id string) (*models.Episode, error)
	ListScenes(episodeID string) ([]*models.SceneRecord, error)
	ListEpisodeAudio(episodeID string) ([]*models.EpisodeAudio, error)
}

// EpisodeHandlers handles episode lifecycle requests
type EpisodeHandlers struct {
	orchestrator *engine.Orchestrator
	store        EpisodeStore
}

// NewEpisodeHandlers creates a new episode handlers instance
func NewEpisodeHandlers(orchestrator *engine.Orchestrator, store EpisodeStore) *EpisodeHandlers {
	return &EpisodeHandlers{
		orchestrator: orchestrator,
		store:        store,
	}
}

// StartEpisodeRequest represents an episode start request
type StartEpisodeRequest struct {
	EpisodeID string `json:"episode_id,omitempty"` // optional idempotency key
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Premise   string `json:"premise"`
}

// StartEpisodeResponse represents an episode start response
type StartEpisodeResponse struct {
	Success bool                `json:"success"`
	Result  *engine.StartResult `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ChoiceRequest represents a choice submission
type ChoiceRequest struct {
	Choice string `json:"choice"`
	UserID string `json:"user_id"`
}

// ChoiceResponse represents a choice or finish response
type ChoiceResponse struct {
	Success bool                 `json:"success"`
	Result  *engine.ChoiceResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// EpisodeDetailResponse carries an episode with its scene history.
type EpisodeDetailResponse struct {
	Success bool                  `json:"success"`
	Episode *models.Episode       `json:"episode,omitempty"`
	Scenes  []*models.SceneRecord `json:"scenes,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// EpisodeAudioResponse lists an episode's audio rows.
type EpisodeAudioResponse struct {
	Success bool                   `json:"success"`
	Audio   []*models.EpisodeAudio `json:"audio,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// StartEpisode creates a new episode from a premise
func (h *EpisodeHandlers) StartEpisode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req StartEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(StartEpisodeResponse{Success: false, Error: "Invalid request body"})
		return
	}

	result, err := h.orchestrator.Start(r.Context(), engine.StartRequest{
		EpisodeID: req.EpisodeID,
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Title:     req.Title,
		Premise:   req.Premise,
	})
	if err != nil {
		log.Printf("[Web] Start failed: %v", err)
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(StartEpisodeResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(StartEpisodeResponse{Success: true, Result: result})
}

// SubmitChoice advances the episode along the chosen branch
func (h *EpisodeHandlers) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: "Invalid request body"})
		return
	}

	result, err := h.orchestrator.ProcessChoice(r.Context(), episodeID, req.Choice, req.UserID)
	if err != nil {
		log.Printf("[Web] Choice failed for %s: %v", episodeID, err)
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ChoiceResponse{Success: true, Result: result})
}

// FinishEpisode resolves the chosen branch into a finale
func (h *EpisodeHandlers) FinishEpisode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: "Invalid request body"})
		return
	}

	result, err := h.orchestrator.Finish(r.Context(), episodeID, req.Choice, req.UserID)
	if err != nil {
		log.Printf("[Web] Finish failed for %s: %v", episodeID, err)
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ChoiceResponse{Success: true, Result: result})
}

// AbandonEpisode marks the episode abandoned
func (h *EpisodeHandlers) AbandonEpisode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	if err := h.orchestrator.Abandon(r.Context(), episodeID, r.URL.Query().Get("user_id")); err != nil {
		log.Printf("[Web] Abandon failed for %s: %v", episodeID, err)
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ChoiceResponse{Success: true})
}

// PregenerateBranches refills a window that lost its speculative children
func (h *EpisodeHandlers) PregenerateBranches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	if err := h.orchestrator.RegenerateChildren(r.Context(), episodeID); err != nil {
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(ChoiceResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(ChoiceResponse{Success: true})
}

// GetEpisode returns the episode record with its scene history
func (h *EpisodeHandlers) GetEpisode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	episode, err := h.store.GetEpisode(episodeID)
	if err != nil {
		w.WriteHeader(statusForEngineError(err))
		json.NewEncoder(w).Encode(EpisodeDetailResponse{Success: false, Error: err.Error()})
		return
	}
	scenes, err := h.store.ListScenes(episodeID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(EpisodeDetailResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(EpisodeDetailResponse{Success: true, Episode: episode, Scenes: scenes})
}

// GetEpisodeAudio returns all audio rows for an episode
func (h *EpisodeHandlers) GetEpisodeAudio(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	episodeID := chi.URLParam(r, "episode_id")

	rows, err := h.store.ListEpisodeAudio(episodeID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(EpisodeAudioResponse{Success: false, Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(EpisodeAudioResponse{Success: true, Audio: rows})
}

// statusForEngineError maps engine errors onto HTTP statuses.
func statusForEngineError(err error) int {
	switch {
	case errors.Is(err, engine.ErrEpisodeNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, engine.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoPregeneratedScene):
		// Retriable: the window is refilling.
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrMissingWorldBible):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
