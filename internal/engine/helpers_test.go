package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"fablecast/server/internal/agents"
	"fablecast/server/internal/audio"
	"fablecast/server/internal/config"
	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
	"fablecast/server/internal/storage"
)

// fakeGenerator serves canned JSON payloads keyed by schema name.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeGenerator) respond(schema, payload string) {
	f.mu.Lock()
	f.responses[schema] = payload
	f.mu.Unlock()
}

func (f *fakeGenerator) fail(schema string, err error) {
	f.mu.Lock()
	f.errs[schema] = err
	f.mu.Unlock()
}

func (f *fakeGenerator) callCount(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, req genai.StructuredRequest, out any) error {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	err := f.errs[req.SchemaName]
	payload, ok := f.responses[req.SchemaName]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no canned response for schema %q", req.SchemaName)
	}
	return json.Unmarshal([]byte(payload), out)
}

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu       sync.Mutex
	episodes map[string]*models.Episode
	bibles   map[string]*models.WorldBible
	cards    map[string]*models.StateCard
	scenes   map[string]*models.SceneRecord
	audio    map[string]*models.EpisodeAudio
}

func newMemStore() *memStore {
	return &memStore{
		episodes: make(map[string]*models.Episode),
		bibles:   make(map[string]*models.WorldBible),
		cards:    make(map[string]*models.StateCard),
		scenes:   make(map[string]*models.SceneRecord),
		audio:    make(map[string]*models.EpisodeAudio),
	}
}

func (m *memStore) CreateEpisodeWithBible(episode *models.Episode, bible *models.WorldBible, firstScene *models.SceneRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bibles[episode.ID]; ok {
		return fmt.Errorf("bible already exists for episode %s", episode.ID)
	}
	ep := *episode
	m.episodes[episode.ID] = &ep
	m.bibles[episode.ID] = bible
	sc := *firstScene
	m.scenes[firstScene.ID] = &sc
	return nil
}

func (m *memStore) GetEpisode(id string) (*models.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.episodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *ep
	return &out, nil
}

func (m *memStore) GetWorldBible(episodeID string) (*models.WorldBible, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bibles[episodeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (m *memStore) SaveEpisodeState(episode *models.Episode, card *models.StateCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep := *episode
	m.episodes[episode.ID] = &ep
	m.cards[episode.ID] = card.Clone()
	return nil
}

func (m *memStore) LoadStateCard(episode *models.Episode) (*models.StateCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[episode.ID]
	if !ok {
		return &models.StateCard{StorySoFar: episode.Premise}, nil
	}
	return card.Clone(), nil
}

func (m *memStore) CreateScene(scene *models.SceneRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.scenes {
		if existing.EpisodeID == scene.EpisodeID && existing.SceneNumber == scene.SceneNumber {
			return fmt.Errorf("duplicate scene %d for episode %s", scene.SceneNumber, scene.EpisodeID)
		}
	}
	sc := *scene
	m.scenes[scene.ID] = &sc
	return nil
}

func (m *memStore) ResolveScene(sceneID, chosenOption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenes[sceneID]
	if !ok {
		return storage.ErrNotFound
	}
	sc.ChosenOption = chosenOption
	return nil
}

func (m *memStore) GetScene(sceneID string) (*models.SceneRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scenes[sceneID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *sc
	return &out, nil
}

func (m *memStore) ListScenes(episodeID string) ([]*models.SceneRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SceneRecord
	for _, sc := range m.scenes {
		if sc.EpisodeID == episodeID {
			c := *sc
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out, nil
}

func (m *memStore) CreateEpisodeAudio(row *models.EpisodeAudio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *row
	m.audio[row.ID] = &r
	return nil
}

func (m *memStore) UpdateAudioStatus(id, status, assetPath, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.audio[id]
	if !ok {
		return storage.ErrNotFound
	}
	row.Status = status
	row.AssetPath = assetPath
	row.LastError = errMsg
	return nil
}

func (m *memStore) ListEpisodeAudio(episodeID string) ([]*models.EpisodeAudio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.EpisodeAudio
	for _, row := range m.audio {
		if row.EpisodeID == episodeID {
			r := *row
			out = append(out, &r)
		}
	}
	return out, nil
}

type fakeAudioQueue struct {
	mu   sync.Mutex
	jobs []audio.Job
	err  error
}

func (q *fakeAudioQueue) failWith(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *fakeAudioQueue) Enqueue(job audio.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeAudioQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// scriptGenerator wires happy-path responses for a full episode walk.
func scriptGenerator(gen *fakeGenerator) {
	gen.respond("world_bible", `{
		"world_rules": {"genre": "horror", "tone": "tense", "setting": "an abandoned amusement park", "core_conflict": "escape before dawn"},
		"storytelling_guidelines": {"narrative_voice": "second person", "pacing": "moderate"},
		"audio_direction": {"music_style": "detuned carousel waltz", "sfx_categories": ["ambient"], "intensity_range": "quiet to stabs"}
	}`)
	gen.respond("state_init", `{
		"story_so_far": "You wake on the midway with three days missing.",
		"key_facts": ["Three days are missing."],
		"initial_anchors": ["a ticket stub with tomorrow's date"]
	}`)
	gen.respond("scene", `{
		"narration": "The carousel grinds awake in the dark.",
		"choice_a": "Climb onto the carousel",
		"choice_b": "Cut the power",
		"state_update": {},
		"audio_cues": []
	}`)
	gen.respond("state_update", `{
		"story_so_far": "The carousel started and you made your move.",
		"new_key_facts": ["The carousel runs without power."],
		"new_anchors": [],
		"paid_off_anchor_ids": []
	}`)
	gen.respond("callback_suggestion", `{"should_use_callback": false, "callback_type": "none", "reason": "too early"}`)
	gen.respond("finale_scene", `{
		"narration": "Dawn bleeds over the gate as it swings open.",
		"resolution": "You walk out with the lost days accounted for.",
		"state_update": {},
		"audio_cues": []
	}`)
	gen.respond("music_prompt", `{"prompt": "slow waltz", "mood": "uneasy"}`)
	gen.respond("scene_sfx", `{"effects": []}`)
}

func testOrchestrator(gen *fakeGenerator, store Store) (*Orchestrator, *fakeAudioQueue) {
	queue := &fakeAudioQueue{}
	cfg := config.OrchestratorConfig{
		MaxKeyFacts:      10,
		AnchorMaxAge:     5,
		GenerateTimeout:  5 * time.Second,
		LeaseTTL:         time.Minute,
		PremiseMinLength: 10,
		PremiseMaxLength: 500,
	}
	deps := Deps{
		Store:        store,
		AudioQueue:   queue,
		BibleBuilder: agents.NewWorldBibleBuilder(gen),
		Tracker:      agents.NewStateTracker(gen, cfg.MaxKeyFacts),
		Continuity:   agents.NewContinuityAnalyzer(gen, nil),
		Scenes:       agents.NewSceneGenerator(gen),
		Music:        agents.NewMusicDirector(gen),
		SFX:          agents.NewSFXDirector(gen),
	}
	return NewOrchestrator(deps, cfg), queue
}
