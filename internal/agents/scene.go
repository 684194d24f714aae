package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
	"fablecast/server/internal/prompts"
)

// maxCuesPerScene bounds the directive-level cues a single scene may carry.
const maxCuesPerScene = 6

// sceneResponse is the structured output for a regular scene.
type sceneResponse struct {
	Narration string            `json:"narration" jsonschema_description:"The scene's narration, written for audio, with bracketed trigger tokens embedded"`
	ChoiceA   string            `json:"choice_a" jsonschema_description:"First choice offered to the listener"`
	ChoiceB   string            `json:"choice_b" jsonschema_description:"Second choice, with consequences distinct from the first"`
	Delta     models.StateDelta `json:"state_update" jsonschema_description:"Scene-local state changes"`
	AudioCues []models.AudioCue `json:"audio_cues" jsonschema_description:"Audio directives for this scene, including one background music cue"`
}

// finaleResponse is the structured output for the closing scene.
type finaleResponse struct {
	Narration  string            `json:"narration" jsonschema_description:"The finale's narration, written for audio"`
	Resolution string            `json:"resolution" jsonschema_description:"Definitive ending delivered to the listener"`
	Delta      models.StateDelta `json:"state_update" jsonschema_description:"Scene-local state changes"`
	AudioCues  []models.AudioCue `json:"audio_cues" jsonschema_description:"Audio directives for the finale"`
}

// SceneGenerator produces one story beat at a time, consistent with the world
// bible and the current (possibly projected) state card.
type SceneGenerator struct {
	gen          genai.Generator
	sceneSchema  *jsonschema.Schema
	finaleSchema *jsonschema.Schema
}

func NewSceneGenerator(gen genai.Generator) *SceneGenerator {
	return &SceneGenerator{
		gen:          gen,
		sceneSchema:  genai.SchemaFor[sceneResponse](),
		finaleSchema: genai.SchemaFor[finaleResponse](),
	}
}

// GenerateScene produces narration, two distinct choices, a state delta and
// audio cues for the given scene number.
func (g *SceneGenerator) GenerateScene(ctx context.Context, premise string, bible *models.WorldBible, card *models.StateCard, sceneNumber int, suggestion *models.CallbackSuggestion) (*models.SceneDraft, error) {
	var resp sceneResponse
	err := g.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "scene",
		Schema:       g.sceneSchema,
		Instructions: prompts.SceneInstructions,
		Prompt:       g.buildPrompt(premise, bible, card, sceneNumber, suggestion),
	}, &resp)
	if err != nil {
		return nil, err
	}

	draft := &models.SceneDraft{
		Narration: resp.Narration,
		ChoiceA:   resp.ChoiceA,
		ChoiceB:   resp.ChoiceB,
		Delta:     resp.Delta,
		AudioCues: resp.AudioCues,
	}
	if err := validateSceneDraft(draft); err != nil {
		return nil, &genai.SchemaError{Schema: "scene", Err: err}
	}
	normalizeCues(draft, bible)
	return draft, nil
}

// GenerateFinaleScene produces the closing beat: a resolution instead of
// choices. The decision that the episode should end is the orchestrator's
// signal, not this component's.
func (g *SceneGenerator) GenerateFinaleScene(ctx context.Context, premise string, bible *models.WorldBible, card *models.StateCard, sceneNumber int, suggestion *models.CallbackSuggestion) (*models.SceneDraft, error) {
	var resp finaleResponse
	err := g.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "finale_scene",
		Schema:       g.finaleSchema,
		Instructions: prompts.FinaleInstructions,
		Prompt:       g.buildPrompt(premise, bible, card, sceneNumber, suggestion),
	}, &resp)
	if err != nil {
		return nil, err
	}

	draft := &models.SceneDraft{
		Narration:  resp.Narration,
		Resolution: resp.Resolution,
		Delta:      resp.Delta,
		AudioCues:  resp.AudioCues,
	}
	if strings.TrimSpace(draft.Narration) == "" || strings.TrimSpace(draft.Resolution) == "" {
		return nil, &genai.SchemaError{Schema: "finale_scene", Err: fmt.Errorf("finale missing narration or resolution")}
	}
	normalizeCues(draft, bible)
	return draft, nil
}

func (g *SceneGenerator) buildPrompt(premise string, bible *models.WorldBible, card *models.StateCard, sceneNumber int, suggestion *models.CallbackSuggestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Premise: %s\n\n", premise)
	sb.WriteString(prompts.FormatWorldBible(bible))
	sb.WriteString("\n")
	sb.WriteString(prompts.FormatStateCard(card))
	if hint := prompts.FormatCallbackSuggestion(suggestion); hint != "" {
		sb.WriteString("\n")
		sb.WriteString(hint)
	}
	fmt.Fprintf(&sb, "\nWrite scene %d.\n", sceneNumber)
	return sb.String()
}

func validateSceneDraft(d *models.SceneDraft) error {
	if strings.TrimSpace(d.Narration) == "" {
		return fmt.Errorf("empty narration")
	}
	a := strings.TrimSpace(d.ChoiceA)
	b := strings.TrimSpace(d.ChoiceB)
	if a == "" || b == "" {
		return fmt.Errorf("scene must offer two choices")
	}
	if strings.EqualFold(a, b) {
		return fmt.Errorf("choices must be distinct")
	}
	return nil
}

// normalizeCues enforces the audio contract on a draft: cue count is bounded,
// at least one background-music cue exists, and every cue's direction
// references the bible's music style so the directors stay consistent
// episode-over-episode.
func normalizeCues(d *models.SceneDraft, bible *models.WorldBible) {
	if len(d.AudioCues) > maxCuesPerScene {
		d.AudioCues = d.AudioCues[:maxCuesPerScene]
	}

	hasMusic := false
	for i := range d.AudioCues {
		cue := &d.AudioCues[i]
		if cue.Type == models.CueTypeMusic {
			hasMusic = true
		}
		if cue.Trigger == "" {
			cue.Trigger = fmt.Sprintf("[%s:%d]", strings.ToUpper(cue.Type), i+1)
		}
		if !strings.Contains(cue.AudioDirection, bible.Audio.MusicStyle) {
			cue.AudioDirection = strings.TrimSpace(cue.AudioDirection + " In the episode's style: " + bible.Audio.MusicStyle)
		}
	}

	if !hasMusic {
		d.AudioCues = append(d.AudioCues, models.AudioCue{
			Type:           models.CueTypeMusic,
			Trigger:        "[MUSIC:scene]",
			Description:    "Background music for the scene",
			AudioDirection: "Background score in the episode's style: " + bible.Audio.MusicStyle,
			Priority:       1,
			Params:         models.CueParams{Instrumental: true},
		})
	}
}
