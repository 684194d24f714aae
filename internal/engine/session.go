package engine

import (
	"sync"

	"fablecast/server/internal/models"
)

// Candidate is a speculative, not-yet-canonical scene for the number after
// the current one, generated from a projected state card.
type Candidate struct {
	Draft       *models.SceneDraft `json:"draft"`
	SceneNumber int                `json:"scene_number"`
}

// rollingWindow is the orchestrator's in-flight record of the current scene
// and its two speculative children. It is owned by the session and mutated
// only at commit points.
type rollingWindow struct {
	Current *models.SceneRecord `json:"current"`
	OptionA *Candidate          `json:"option_a,omitempty"`
	OptionB *Candidate          `json:"option_b,omitempty"`
}

// Session is the per-episode orchestration context: bible, canonical state
// card and rolling window. Created at start, dropped when the episode leaves
// the active state, rehydratable from the store plus the cached window
// snapshot.
type Session struct {
	EpisodeID string
	Premise   string
	Bible     *models.WorldBible

	mu     sync.Mutex
	card   *models.StateCard
	window rollingWindow
	busy   bool
	genSeq int // bumped at every commit point; stale speculative results are dropped
}

func newSession(episodeID, premise string, bible *models.WorldBible, card *models.StateCard) *Session {
	return &Session{
		EpisodeID: episodeID,
		Premise:   premise,
		Bible:     bible,
		card:      card,
	}
}

// acquire marks the session busy for one operation. Returns false when
// another operation is already in flight.
func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// cardSnapshot returns a deep copy of the canonical state card.
func (s *Session) cardSnapshot() *models.StateCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.card.Clone()
}

// commit installs a new current scene and canonical card, clears both
// candidates and invalidates in-flight speculative work. Returns the new
// generation sequence.
func (s *Session) commit(scene *models.SceneRecord, card *models.StateCard) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Current = scene
	s.window.OptionA = nil
	s.window.OptionB = nil
	s.card = card
	s.genSeq++
	return s.genSeq
}

// candidate returns the pre-generated child for the chosen branch without
// removing it. Candidates are cleared only at commit points, so a promotion
// that fails midway leaves the window intact for the caller's retry.
func (s *Session) candidate(choice string) *Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if choice == models.ChoiceA {
		return s.window.OptionA
	}
	return s.window.OptionB
}

// storeCandidate installs one speculative child if the session has not moved
// on since seq was read. Returns false for stale results.
func (s *Session) storeCandidate(seq int, choice string, c *Candidate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.genSeq != seq {
		return false
	}
	if choice == models.ChoiceA {
		s.window.OptionA = c
	} else {
		s.window.OptionB = c
	}
	return true
}

// currentScene returns the window's current scene.
func (s *Session) currentScene() *models.SceneRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Current
}

// seq returns the current generation sequence.
func (s *Session) seq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genSeq
}

// windowState returns a deep-enough copy of the window for caching.
func (s *Session) windowState() rollingWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// restoreWindow installs a cached window during rehydration.
func (s *Session) restoreWindow(w rollingWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
}

// WindowSnapshot is the read-only view exposed to callers. It is a copy;
// candidates may be replaced underneath the live window at any time.
type WindowSnapshot struct {
	CurrentSceneID     string `json:"current_scene_id"`
	CurrentSceneNumber int    `json:"current_scene_number"`
	HasOptionA         bool   `json:"has_option_a"`
	HasOptionB         bool   `json:"has_option_b"`
}

// Snapshot returns a point-in-time copy of the window state.
func (s *Session) Snapshot() WindowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := WindowSnapshot{
		HasOptionA: s.window.OptionA != nil,
		HasOptionB: s.window.OptionB != nil,
	}
	if s.window.Current != nil {
		snap.CurrentSceneID = s.window.Current.ID
		snap.CurrentSceneNumber = s.window.Current.SceneNumber
	}
	return snap
}
