package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"fablecast/server/internal/audio"
	"fablecast/server/internal/models"
)

// enqueueCue persists an EpisodeAudio row for the cue and hands it to the
// synthesis pipeline. Returns false when audio is disabled or the queue
// rejects the job; the row then stays pending for a later sweep.
func (o *Orchestrator) enqueueCue(episodeID, sceneID string, cue *models.AudioCue) bool {
	if o.audioQ == nil || cue == nil {
		return false
	}
	paramsJSON, _ := json.Marshal(cue.Params)
	row := &models.EpisodeAudio{
		ID:          uuid.NewString(),
		EpisodeID:   episodeID,
		SceneID:     sceneID,
		CueType:     cue.Type,
		Trigger:     cue.Trigger,
		Description: cue.Description,
		Status:      models.AudioStatusPending,
		DurationMs:  cue.Params.DurationMs,
		ParamsJSON:  string(paramsJSON),
	}
	if err := o.store.CreateEpisodeAudio(row); err != nil {
		log.Printf("[Orchestrator] failed to record audio cue for %s: %v", episodeID, err)
		return false
	}
	if err := o.audioQ.Enqueue(audio.Job{AudioID: row.ID, EpisodeID: episodeID, Cue: *cue}); err != nil {
		log.Printf("[Orchestrator] audio queue rejected cue %s: %v", row.ID, err)
		return false
	}
	return true
}

// generateSceneAudio runs the music and sfx directors for a committed scene
// and enqueues everything they produce. Best effort throughout: failures are
// logged and the scene plays without the missing layer.
func (o *Orchestrator) generateSceneAudio(session *Session, scene *models.SceneRecord, draft *models.SceneDraft) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerateTimeout)
	defer cancel()

	estimated := estimateNarrationSeconds(draft.Narration)

	// Narration first: it is the scene itself, everything else is dressing.
	o.enqueueCue(session.EpisodeID, scene.ID, &models.AudioCue{
		Type:        models.CueTypeNarration,
		Trigger:     fmt.Sprintf("[NARRATION:scene_%d]", scene.SceneNumber),
		Description: "Spoken narration for the scene",
		Priority:    10,
		Params:      models.CueParams{Prompt: draft.Narration},
	})

	musicCue, err := o.music.GenerateSceneMusic(ctx, session.Bible, draft.Narration, scene.SceneNumber, estimated)
	if err != nil {
		log.Printf("[Orchestrator] music direction failed for scene %d of %s: %v", scene.SceneNumber, session.EpisodeID, err)
	} else {
		o.enqueueCue(session.EpisodeID, scene.ID, musicCue)
	}

	sfxCues, err := o.sfx.GenerateSceneSFX(ctx, session.Bible, draft.Narration, scene.SceneNumber)
	if err != nil {
		log.Printf("[Orchestrator] sfx direction failed for scene %d of %s: %v", scene.SceneNumber, session.EpisodeID, err)
	} else {
		for _, cue := range sfxCues {
			o.enqueueCue(session.EpisodeID, scene.ID, cue)
		}
	}

	if draft.Delta.LocationChange != "" {
		ambient, err := o.sfx.GenerateAmbientSoundscape(ctx, session.Bible, draft.Delta.LocationChange)
		if err != nil {
			log.Printf("[Orchestrator] ambient direction failed for %s: %v", session.EpisodeID, err)
		} else {
			o.enqueueCue(session.EpisodeID, scene.ID, ambient)
		}
	}

	o.publish(session.EpisodeID, "audio_queued", scene.SceneNumber)
}

// generateEpisodeTheme runs once per episode, right after the bible commits.
func (o *Orchestrator) generateEpisodeTheme(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerateTimeout)
	defer cancel()
	theme, err := o.music.GenerateEpisodeTheme(ctx, session.Bible)
	if err != nil {
		log.Printf("[Orchestrator] theme direction failed for %s: %v", session.EpisodeID, err)
		return
	}
	o.enqueueCue(session.EpisodeID, "", theme)
}

// estimateNarrationSeconds approximates spoken duration at ~150 words/minute,
// used to size scene underscore tracks.
func estimateNarrationSeconds(narration string) int {
	words := len(strings.Fields(narration))
	sec := words * 60 / 150
	if sec < 20 {
		sec = 20
	}
	return sec
}
