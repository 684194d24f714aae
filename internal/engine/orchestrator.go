// Package engine contains the orchestrator: the state machine that sequences
// the generation agents against a per-episode session, keeps the rolling
// window of the current scene plus two pre-generated children, and exposes
// the two operations the application layer calls.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"fablecast/server/internal/agents"
	"fablecast/server/internal/audio"
	"fablecast/server/internal/config"
	"fablecast/server/internal/models"
	"fablecast/server/internal/storage"
)

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	CreateEpisodeWithBible(episode *models.Episode, bible *models.WorldBible, firstScene *models.SceneRecord) error
	GetEpisode(id string) (*models.Episode, error)
	GetWorldBible(episodeID string) (*models.WorldBible, error)
	SaveEpisodeState(episode *models.Episode, card *models.StateCard) error
	LoadStateCard(episode *models.Episode) (*models.StateCard, error)
	CreateScene(scene *models.SceneRecord) error
	ResolveScene(sceneID, chosenOption string) error
	ListScenes(episodeID string) ([]*models.SceneRecord, error)
	CreateEpisodeAudio(audio *models.EpisodeAudio) error
	UpdateAudioStatus(id, status, assetPath, errMsg string) error
	ListEpisodeAudio(episodeID string) ([]*models.EpisodeAudio, error)
}

// AudioQueue accepts realized cues for asynchronous synthesis.
type AudioQueue interface {
	Enqueue(job audio.Job) error
}

// AnchorWriter records planted anchors for semantic continuity retrieval.
// Optional.
type AnchorWriter interface {
	StoreAnchor(ctx context.Context, episodeID string, anchor models.Anchor) error
}

// EventPublisher receives progress events for presentation layers. Optional.
type EventPublisher interface {
	Publish(episodeID, event string, payload interface{})
}

// StartResult is returned from Start.
type StartResult struct {
	Episode    *models.Episode     `json:"episode"`
	FirstScene *models.SceneRecord `json:"first_scene"`
	StateCard  *models.StateCard   `json:"state_card"`
}

// ChoiceResult is returned from ProcessChoice and Finish.
type ChoiceResult struct {
	Scene          *models.SceneRecord `json:"scene"`
	StateCard      *models.StateCard   `json:"state_card"`
	AudioGenerated bool                `json:"audio_generated"`
}

// Orchestrator composes the agents into the episode state machine. Agent
// results are threaded directly as typed values between steps; there is no
// generative tool-calling in the control path.
type Orchestrator struct {
	store   Store
	redis   *storage.RedisStore // optional: lease + window snapshot cache
	audioQ  AudioQueue          // optional
	anchors AnchorWriter        // optional
	events  EventPublisher      // optional

	bibleBuilder *agents.WorldBibleBuilder
	tracker      *agents.StateTracker
	continuity   *agents.ContinuityAnalyzer
	scenes       *agents.SceneGenerator
	music        *agents.MusicDirector
	sfx          *agents.SFXDirector

	cfg config.OrchestratorConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Store        Store
	Redis        *storage.RedisStore
	AudioQueue   AudioQueue
	Anchors      AnchorWriter
	Events       EventPublisher
	BibleBuilder *agents.WorldBibleBuilder
	Tracker      *agents.StateTracker
	Continuity   *agents.ContinuityAnalyzer
	Scenes       *agents.SceneGenerator
	Music        *agents.MusicDirector
	SFX          *agents.SFXDirector
}

func NewOrchestrator(deps Deps, cfg config.OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		store:        deps.Store,
		redis:        deps.Redis,
		audioQ:       deps.AudioQueue,
		anchors:      deps.Anchors,
		events:       deps.Events,
		bibleBuilder: deps.BibleBuilder,
		tracker:      deps.Tracker,
		continuity:   deps.Continuity,
		scenes:       deps.Scenes,
		music:        deps.Music,
		sfx:          deps.SFX,
		cfg:          cfg,
		sessions:     make(map[string]*Session),
	}
}

// StartRequest identifies a new or retried episode start. EpisodeID doubles
// as the idempotency key: a second start with the same id must never create a
// second world bible.
type StartRequest struct {
	EpisodeID string
	AccountID string
	UserID    string
	Title     string
	Premise   string
}

// Start creates the episode: world bible (once), initial state card, scene 1.
// Scene 1's audio and both speculative children are kicked off in the
// background so the caller sees scene 1 immediately.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.EpisodeID == "" {
		req.EpisodeID = uuid.NewString()
	}
	if n := len(req.Premise); n < o.cfg.PremiseMinLength || n > o.cfg.PremiseMaxLength {
		return nil, fmt.Errorf("premise must be %d-%d characters, got %d",
			o.cfg.PremiseMinLength, o.cfg.PremiseMaxLength, n)
	}

	release, err := o.lock(ctx, req.EpisodeID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Idempotency guard: if the episode record already exists its bible is
	// loaded, never regenerated.
	if episode, err := o.store.GetEpisode(req.EpisodeID); err == nil {
		return o.resumeStart(ctx, episode)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	bible, err := o.bibleBuilder.CreateWorldBible(ctx, req.Premise)
	if err != nil {
		return nil, fmt.Errorf("world bible generation failed: %w", err)
	}
	o.publish(req.EpisodeID, "bible_ready", nil)

	card, err := o.tracker.Initialize(ctx, req.Premise)
	if err != nil {
		return nil, fmt.Errorf("state initialization failed: %w", err)
	}

	draft, err := o.scenes.GenerateScene(ctx, req.Premise, bible, card, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("scene 1 generation failed: %w", err)
	}

	episode := &models.Episode{
		ID:        req.EpisodeID,
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Title:     req.Title,
		Premise:   req.Premise,
		Status:    models.EpisodeStatusActive,
	}
	scene1 := sceneRecordFromDraft(req.EpisodeID, 1, draft)

	// Nothing is committed for a failed start: episode, bible and scene 1
	// land in one transaction.
	if err := o.store.CreateEpisodeWithBible(episode, bible, scene1); err != nil {
		return nil, fmt.Errorf("failed to persist episode: %w", err)
	}
	if err := o.store.SaveEpisodeState(episode, card); err != nil {
		return nil, fmt.Errorf("failed to persist state card: %w", err)
	}

	session := newSession(req.EpisodeID, req.Premise, bible, card)
	session.commit(scene1, card)
	o.putSession(session)
	o.storeAnchorsAsync(req.EpisodeID, card.Anchors)
	o.publish(req.EpisodeID, "scene_ready", scene1.SceneNumber)

	go o.generateEpisodeTheme(session)
	go o.generateSceneAudio(session, scene1, draft)
	go o.pregenerateChildren(session, scene1)

	return &StartResult{Episode: episode, FirstScene: scene1, StateCard: card}, nil
}

// resumeStart serves a retried start for an existing episode without
// regenerating anything.
func (o *Orchestrator) resumeStart(ctx context.Context, episode *models.Episode) (*StartResult, error) {
	session, err := o.sessionFor(ctx, episode)
	if err != nil {
		return nil, err
	}
	scene := session.currentScene()
	card := session.cardSnapshot()
	log.Printf("[Orchestrator] start replay for episode %s at scene %d", episode.ID, scene.SceneNumber)
	return &StartResult{Episode: episode, FirstScene: scene, StateCard: card}, nil
}

// ProcessChoice promotes the pre-generated child for the chosen branch,
// commits the state transition, and starts audio plus the next speculative
// generation round.
func (o *Orchestrator) ProcessChoice(ctx context.Context, episodeID, choice, userID string) (*ChoiceResult, error) {
	if choice != models.ChoiceA && choice != models.ChoiceB {
		return nil, fmt.Errorf("choice must be %q or %q", models.ChoiceA, models.ChoiceB)
	}

	episode, err := o.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.Status != models.EpisodeStatusActive {
		return nil, ErrInvalidState
	}

	session, err := o.sessionFor(ctx, episode)
	if err != nil {
		return nil, err
	}
	if !session.acquire() {
		return nil, ErrConcurrentModification
	}
	defer session.release()

	release, err := o.lock(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	defer release()

	current := session.currentScene()
	if current == nil {
		return nil, ErrNoPregeneratedScene
	}
	candidate := session.candidate(choice)
	if candidate == nil {
		// No synchronous fallback: the caller retries or invokes the repair
		// path, keeping the latency contract honest.
		return nil, ErrNoPregeneratedScene
	}

	resolved := *current
	resolved.ChosenOption = choice

	prior, err := o.store.ListScenes(episodeID)
	if err != nil {
		return nil, err
	}

	card, err := o.tracker.Update(ctx, session.cardSnapshot(), &resolved, choice, prior)
	if err != nil {
		return nil, fmt.Errorf("state update failed: %w", err)
	}
	card = o.tracker.Cleanup(card, candidate.SceneNumber, o.cfg.AnchorMaxAge)

	next := sceneRecordFromDraft(episodeID, candidate.SceneNumber, candidate.Draft)
	if err := o.store.CreateScene(next); err != nil {
		return nil, fmt.Errorf("failed to persist scene %d: %w", next.SceneNumber, err)
	}
	if err := o.store.ResolveScene(current.ID, choice); err != nil {
		return nil, fmt.Errorf("failed to resolve scene %d: %w", current.SceneNumber, err)
	}

	// The counter tracks persisted scenes; scene numbers are sequential from 1.
	episode.TotalScenes = next.SceneNumber
	episode.TotalChoices++
	if err := o.store.SaveEpisodeState(episode, card); err != nil {
		return nil, fmt.Errorf("failed to persist state card: %w", err)
	}

	session.commit(next, card)
	o.saveWindow(session)
	o.storeAnchorsAsync(episodeID, card.Anchors)
	o.publish(episodeID, "scene_ready", next.SceneNumber)

	audioStarted := o.enqueueCue(episodeID, next.ID,
		o.music.GenerateTransitionStinger(session.Bible, current.SceneNumber, next.SceneNumber))
	go o.generateSceneAudio(session, next, candidate.Draft)
	go o.pregenerateChildren(session, next)

	return &ChoiceResult{Scene: next, StateCard: card, AudioGenerated: audioStarted}, nil
}

// Finish resolves the chosen branch into a finale scene and completes the
// episode. The decision that the story should end arrives from the caller;
// the orchestrator only executes it.
func (o *Orchestrator) Finish(ctx context.Context, episodeID, choice, userID string) (*ChoiceResult, error) {
	if choice != models.ChoiceA && choice != models.ChoiceB {
		return nil, fmt.Errorf("choice must be %q or %q", models.ChoiceA, models.ChoiceB)
	}

	episode, err := o.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if episode.Status != models.EpisodeStatusActive {
		return nil, ErrInvalidState
	}

	session, err := o.sessionFor(ctx, episode)
	if err != nil {
		return nil, err
	}
	if !session.acquire() {
		return nil, ErrConcurrentModification
	}
	defer session.release()

	release, err := o.lock(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	defer release()

	current := session.currentScene()
	if current == nil {
		return nil, ErrNoPregeneratedScene
	}
	resolved := *current
	resolved.ChosenOption = choice

	prior, err := o.store.ListScenes(episodeID)
	if err != nil {
		return nil, err
	}
	card, err := o.tracker.Update(ctx, session.cardSnapshot(), &resolved, choice, prior)
	if err != nil {
		return nil, fmt.Errorf("state update failed: %w", err)
	}

	finaleNumber := current.SceneNumber + 1
	upcoming := fmt.Sprintf("The finale after scene %d; the listener chose: %s", current.SceneNumber, chosenText(current, choice))
	suggestion, err := o.continuity.AnalyzeCallbacks(ctx, episodeID, card, upcoming)
	if err != nil {
		suggestion = nil
	}

	draft, err := o.scenes.GenerateFinaleScene(ctx, session.Premise, session.Bible, card, finaleNumber, suggestion)
	if err != nil {
		return nil, fmt.Errorf("finale generation failed: %w", err)
	}

	finale := sceneRecordFromDraft(episodeID, finaleNumber, draft)
	finale.IsFinale = true
	finale.Resolution = draft.Resolution
	if err := o.store.CreateScene(finale); err != nil {
		return nil, fmt.Errorf("failed to persist finale: %w", err)
	}
	if err := o.store.ResolveScene(current.ID, choice); err != nil {
		return nil, fmt.Errorf("failed to resolve scene %d: %w", current.SceneNumber, err)
	}

	episode.TotalScenes = finale.SceneNumber
	episode.TotalChoices++
	episode.Status = models.EpisodeStatusCompleted
	if err := o.store.SaveEpisodeState(episode, card); err != nil {
		return nil, fmt.Errorf("failed to persist state card: %w", err)
	}

	session.commit(finale, card)
	o.publish(episodeID, "episode_completed", finale.SceneNumber)

	audioStarted := o.enqueueCue(episodeID, finale.ID,
		o.sfx.GenerateImpactEffect(session.Bible, "Finale sting: "+session.Bible.WorldRules.CoreConflict))
	go o.generateSceneAudio(session, finale, draft)
	o.dropSession(episodeID)

	return &ChoiceResult{Scene: finale, StateCard: card, AudioGenerated: audioStarted}, nil
}

// Abandon marks the episode abandoned and tears the session down. In-flight
// speculative results become stale and are discarded on arrival.
func (o *Orchestrator) Abandon(ctx context.Context, episodeID, userID string) error {
	episode, err := o.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEpisodeNotFound
		}
		return err
	}
	if episode.Status != models.EpisodeStatusActive {
		return ErrInvalidState
	}

	card, err := o.store.LoadStateCard(episode)
	if err != nil {
		return err
	}
	episode.Status = models.EpisodeStatusAbandoned
	if err := o.store.SaveEpisodeState(episode, card); err != nil {
		return err
	}
	o.dropSession(episodeID)
	o.publish(episodeID, "episode_abandoned", nil)
	return nil
}

// Snapshot returns a copy of the episode's window state for status callers.
func (o *Orchestrator) Snapshot(episodeID string) (WindowSnapshot, bool) {
	o.mu.RLock()
	session, ok := o.sessions[episodeID]
	o.mu.RUnlock()
	if !ok {
		return WindowSnapshot{}, false
	}
	return session.Snapshot(), true
}

// RegenerateChildren is the explicit repair path for a window that lost its
// candidates (instance restart, pre-generation failure).
func (o *Orchestrator) RegenerateChildren(ctx context.Context, episodeID string) error {
	episode, err := o.store.GetEpisode(episodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEpisodeNotFound
		}
		return err
	}
	if episode.Status != models.EpisodeStatusActive {
		return ErrInvalidState
	}
	session, err := o.sessionFor(ctx, episode)
	if err != nil {
		return err
	}
	current := session.currentScene()
	if current == nil || current.IsFinale {
		return ErrInvalidState
	}
	go o.pregenerateChildren(session, current)
	return nil
}

// sessionFor returns the live session, rehydrating it from the store and the
// cached window snapshot when this instance has never seen the episode.
func (o *Orchestrator) sessionFor(ctx context.Context, episode *models.Episode) (*Session, error) {
	o.mu.RLock()
	session, ok := o.sessions[episode.ID]
	o.mu.RUnlock()
	if ok {
		return session, nil
	}

	bible, err := o.store.GetWorldBible(episode.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMissingWorldBible
		}
		return nil, err
	}
	card, err := o.store.LoadStateCard(episode)
	if err != nil {
		return nil, err
	}

	session = newSession(episode.ID, episode.Premise, bible, card)

	restored := false
	if o.redis != nil {
		var cached rollingWindow
		if ok, err := o.redis.LoadWindowSnapshot(ctx, episode.ID, &cached); err == nil && ok && cached.Current != nil {
			session.restoreWindow(cached)
			restored = true
		}
	}
	if !restored {
		scenes, err := o.store.ListScenes(episode.ID)
		if err != nil {
			return nil, err
		}
		if len(scenes) > 0 {
			session.commit(scenes[len(scenes)-1], card)
		}
	}

	o.putSession(session)
	return session, nil
}

func (o *Orchestrator) putSession(s *Session) {
	o.mu.Lock()
	o.sessions[s.EpisodeID] = s
	o.mu.Unlock()
}

func (o *Orchestrator) dropSession(episodeID string) {
	o.mu.Lock()
	if s, ok := o.sessions[episodeID]; ok {
		s.commit(nil, s.cardSnapshot()) // invalidate in-flight speculative work
		delete(o.sessions, episodeID)
	}
	o.mu.Unlock()
	if o.redis != nil {
		_ = o.redis.DeleteWindowSnapshot(context.Background(), episodeID)
	}
}

// lock takes the cross-instance per-episode lease when Redis is configured.
func (o *Orchestrator) lock(ctx context.Context, episodeID string) (func(), error) {
	if o.redis == nil {
		return func() {}, nil
	}
	ok, err := o.redis.AcquireLease(ctx, episodeID, o.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("lease acquisition failed: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentModification
	}
	return func() {
		_ = o.redis.ReleaseLease(context.Background(), episodeID)
	}, nil
}

func (o *Orchestrator) saveWindow(session *Session) {
	if o.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerateTimeout)
	defer cancel()
	if err := o.redis.SaveWindowSnapshot(ctx, session.EpisodeID, session.windowState()); err != nil {
		log.Printf("[Orchestrator] failed to cache window for %s: %v", session.EpisodeID, err)
	}
}

func (o *Orchestrator) storeAnchorsAsync(episodeID string, anchors []models.Anchor) {
	if o.anchors == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerateTimeout)
		defer cancel()
		for _, a := range anchors {
			if a.IsUsed {
				continue
			}
			if err := o.anchors.StoreAnchor(ctx, episodeID, a); err != nil {
				log.Printf("[Orchestrator] anchor indexing failed for %s: %v", episodeID, err)
				return
			}
		}
	}()
}

func (o *Orchestrator) publish(episodeID, event string, payload interface{}) {
	if o.events != nil {
		o.events.Publish(episodeID, event, payload)
	}
}

func sceneRecordFromDraft(episodeID string, number int, draft *models.SceneDraft) *models.SceneRecord {
	deltaJSON, _ := json.Marshal(draft.Delta)
	cuesJSON, _ := json.Marshal(draft.AudioCues)
	return &models.SceneRecord{
		ID:          uuid.NewString(),
		EpisodeID:   episodeID,
		SceneNumber: number,
		Narration:   draft.Narration,
		ChoiceA:     draft.ChoiceA,
		ChoiceB:     draft.ChoiceB,
		DeltaJSON:   string(deltaJSON),
		CuesJSON:    string(cuesJSON),
	}
}

func chosenText(scene *models.SceneRecord, choice string) string {
	if choice == models.ChoiceB {
		return scene.ChoiceB
	}
	return scene.ChoiceA
}
