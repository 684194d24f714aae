package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fablecast/server/internal/engine"
	"fablecast/server/internal/models"
	"fablecast/server/internal/storage"
)

type fakeEpisodeStore struct {
	episodes map[string]*models.Episode
	scenes   map[string][]*models.SceneRecord
	audio    map[string][]*models.EpisodeAudio
}

func (f *fakeEpisodeStore) GetEpisode(id string) (*models.Episode, error) {
	ep, ok := f.episodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return ep, nil
}

func (f *fakeEpisodeStore) ListScenes(episodeID string) ([]*models.SceneRecord, error) {
	return f.scenes[episodeID], nil
}

func (f *fakeEpisodeStore) ListEpisodeAudio(episodeID string) ([]*models.EpisodeAudio, error) {
	return f.audio[episodeID], nil
}

func testReadRouter(store EpisodeStore) *chi.Mux {
	handlers := NewEpisodeHandlers(nil, store)
	r := chi.NewRouter()
	r.Get("/api/v1/episodes/{episode_id}", handlers.GetEpisode)
	r.Get("/api/v1/episodes/{episode_id}/audio", handlers.GetEpisodeAudio)
	return r
}

func TestGetEpisode(t *testing.T) {
	store := &fakeEpisodeStore{
		episodes: map[string]*models.Episode{
			"ep1": {ID: "ep1", Status: models.EpisodeStatusActive, Premise: "a premise"},
		},
		scenes: map[string][]*models.SceneRecord{
			"ep1": {{ID: "s1", EpisodeID: "ep1", SceneNumber: 1}},
		},
	}
	r := testReadRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/episodes/ep1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EpisodeDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ep1", resp.Episode.ID)
	require.Len(t, resp.Scenes, 1)
}

func TestGetEpisodeNotFound(t *testing.T) {
	r := testReadRouter(&fakeEpisodeStore{episodes: map[string]*models.Episode{}})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/episodes/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp EpisodeDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestGetEpisodeAudio(t *testing.T) {
	store := &fakeEpisodeStore{
		episodes: map[string]*models.Episode{"ep1": {ID: "ep1"}},
		audio: map[string][]*models.EpisodeAudio{
			"ep1": {{ID: "a1", EpisodeID: "ep1", Status: models.AudioStatusReady, AssetPath: "/assets/a1.mp3"}},
		},
	}
	r := testReadRouter(store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/episodes/ep1/audio", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EpisodeAudioResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Audio, 1)
	assert.Equal(t, models.AudioStatusReady, resp.Audio[0].Status)
}

func TestStatusForEngineError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForEngineError(engine.ErrEpisodeNotFound))
	assert.Equal(t, http.StatusNotFound, statusForEngineError(storage.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusForEngineError(engine.ErrInvalidState))
	assert.Equal(t, http.StatusConflict, statusForEngineError(engine.ErrConcurrentModification))
	assert.Equal(t, http.StatusServiceUnavailable, statusForEngineError(engine.ErrNoPregeneratedScene))
	assert.Equal(t, http.StatusInternalServerError, statusForEngineError(assert.AnError))
}
