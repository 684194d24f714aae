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

// Provider constraints on generated sound effects.
const (
	maxSFXPerScene    = 8
	sfxMinDurationSec = 0.5
	sfxMaxDurationSec = 30.0
)

// sfxEntry is one sound-design brief in the structured output.
type sfxEntry struct {
	Text            string  `json:"text" jsonschema_description:"Synthesis text describing the sound itself"`
	Category        string  `json:"category" jsonschema_description:"SFX family, e.g. mechanical, ambient, impact"`
	DurationSeconds float64 `json:"duration_seconds" jsonschema_description:"Target duration in seconds"`
	PromptInfluence float64 `json:"prompt_influence" jsonschema_description:"How literally to follow the text, 0 to 1"`
	Loop            bool    `json:"loop" jsonschema_description:"True only for ambient or atmospheric sounds"`
}

type sfxResponse struct {
	Effects []sfxEntry `json:"effects" jsonschema_description:"Sound effects for the scene, at most eight"`
}

// SFXDirector translates narration into sound-effect generation parameters.
// Like the music director it is a pure translator; synthesis happens in the
// audio pipeline.
type SFXDirector struct {
	gen    genai.Generator
	schema *jsonschema.Schema
}

func NewSFXDirector(gen genai.Generator) *SFXDirector {
	return &SFXDirector{
		gen:    gen,
		schema: genai.SchemaFor[sfxResponse](),
	}
}

// GenerateSceneSFX produces the scene's sound effects, bounded to eight
// entries with durations in [0.5s, 30s] and prompt influence in [0, 1].
// Looping is only honored for ambient categories.
func (d *SFXDirector) GenerateSceneSFX(ctx context.Context, bible *models.WorldBible, narration string, sceneNumber int) ([]*models.AudioCue, error) {
	var resp sfxResponse
	err := d.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "scene_sfx",
		Schema:       d.schema,
		Instructions: prompts.SFXInstructions,
		Prompt: fmt.Sprintf("SFX categories: %s\nIntensity range: %s\nScene %d narration:\n%s",
			strings.Join(bible.Audio.SFXCategories, ", "), bible.Audio.IntensityRange, sceneNumber, narration),
	}, &resp)
	if err != nil {
		return nil, err
	}

	entries := resp.Effects
	if len(entries) > maxSFXPerScene {
		entries = entries[:maxSFXPerScene]
	}

	cues := make([]*models.AudioCue, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		cues = append(cues, &models.AudioCue{
			Type:           models.CueTypeSFX,
			Trigger:        fmt.Sprintf("[SFX:%d-%d]", sceneNumber, i+1),
			Description:    e.Text,
			AudioDirection: fmt.Sprintf("%s (%s)", e.Category, bible.Audio.IntensityRange),
			Priority:       4,
			Params: models.CueParams{
				DurationSeconds: clampSFXDuration(e.DurationSeconds),
				PromptInfluence: clampInfluence(e.PromptInfluence),
				Loop:            e.Loop && isAmbientCategory(e.Category),
				Prompt:          e.Text,
			},
		})
	}
	return cues, nil
}

// GenerateAmbientSoundscape produces the looping bed for a location. Duration
// is forced into the [15s, 30s] loop window.
func (d *SFXDirector) GenerateAmbientSoundscape(ctx context.Context, bible *models.WorldBible, location string) (*models.AudioCue, error) {
	var resp sfxResponse
	err := d.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "scene_sfx",
		Schema:       d.schema,
		Instructions: prompts.SFXInstructions,
		Prompt: fmt.Sprintf("Design ONE looping ambient soundscape for this location: %s\nSFX categories: %s",
			location, strings.Join(bible.Audio.SFXCategories, ", ")),
	}, &resp)
	if err != nil {
		return nil, err
	}

	text := "Ambient room tone for " + location
	if len(resp.Effects) > 0 && strings.TrimSpace(resp.Effects[0].Text) != "" {
		text = resp.Effects[0].Text
	}

	duration := 22.0
	if len(resp.Effects) > 0 {
		duration = resp.Effects[0].DurationSeconds
	}
	if duration < 15 {
		duration = 15
	}
	if duration > 30 {
		duration = 30
	}

	return &models.AudioCue{
		Type:           models.CueTypeSFX,
		Trigger:        "[SFX:ambient]",
		Description:    "Ambient soundscape: " + location,
		AudioDirection: "ambient (" + bible.Audio.IntensityRange + ")",
		Priority:       1,
		Params: models.CueParams{
			DurationSeconds: duration,
			PromptInfluence: 0.5,
			Loop:            true,
			Prompt:          text,
		},
	}, nil
}

// GenerateImpactEffect produces a dramatic one-shot. Deterministic: impacts
// are short and follow the description literally.
func (d *SFXDirector) GenerateImpactEffect(bible *models.WorldBible, description string) *models.AudioCue {
	return &models.AudioCue{
		Type:           models.CueTypeSFX,
		Trigger:        "[SFX:impact]",
		Description:    description,
		AudioDirection: "impact (" + bible.Audio.IntensityRange + ")",
		Priority:       8,
		Params: models.CueParams{
			DurationSeconds: 2.0,
			PromptInfluence: 0.9,
			Loop:            false,
			Prompt:          description,
		},
	}
}

func clampSFXDuration(sec float64) float64 {
	if sec == 0 {
		return 0 // unspecified, provider picks
	}
	if sec < sfxMinDurationSec {
		return sfxMinDurationSec
	}
	if sec > sfxMaxDurationSec {
		return sfxMaxDurationSec
	}
	return sec
}

func clampInfluence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isAmbientCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "ambient") || strings.Contains(c, "atmosphere") || strings.Contains(c, "atmospheric")
}
