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

// Provider constraints on generated music.
const (
	musicMinDurationMs = 10_000
	musicMaxDurationMs = 300_000

	// instrumentalMarker must appear literally in every realized music
	// prompt. The synthesis provider takes it as a hard constraint and the
	// test suite checks for it.
	instrumentalMarker = "instrumental only"
)

// musicPromptResponse is the structured output for a composition brief.
type musicPromptResponse struct {
	Prompt string `json:"prompt" jsonschema_description:"Composition prompt for the music-generation model"`
	Mood   string `json:"mood" jsonschema_description:"One- or two-word mood label"`
}

// MusicDirector translates a scene's narration and the bible's audio style
// into concrete music-generation parameters. It never calls the synthesis
// provider itself; realized cues are handed to the audio pipeline.
type MusicDirector struct {
	gen    genai.Generator
	schema *jsonschema.Schema
}

func NewMusicDirector(gen genai.Generator) *MusicDirector {
	return &MusicDirector{
		gen:    gen,
		schema: genai.SchemaFor[musicPromptResponse](),
	}
}

// GenerateSceneMusic produces the background-music cue for one scene.
// Duration is clamped to the provider's [10s, 300s] window and the realized
// prompt always carries the instrumental-only marker.
func (d *MusicDirector) GenerateSceneMusic(ctx context.Context, bible *models.WorldBible, narration string, sceneNumber int, estimatedDurationSeconds int) (*models.AudioCue, error) {
	var resp musicPromptResponse
	err := d.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "music_prompt",
		Schema:       d.schema,
		Instructions: prompts.MusicInstructions,
		Prompt: fmt.Sprintf("Music style: %s\nIntensity range: %s\nScene %d narration:\n%s",
			bible.Audio.MusicStyle, bible.Audio.IntensityRange, sceneNumber, narration),
	}, &resp)
	if err != nil {
		return nil, err
	}

	prompt := resp.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("Background score for a %s scene. %s", bible.WorldRules.Genre, bible.Audio.MusicStyle)
	}

	return &models.AudioCue{
		Type:           models.CueTypeMusic,
		Trigger:        fmt.Sprintf("[MUSIC:scene-%d]", sceneNumber),
		Description:    fmt.Sprintf("Scene %d background music (%s)", sceneNumber, resp.Mood),
		AudioDirection: bible.Audio.MusicStyle,
		Priority:       5,
		Params: models.CueParams{
			DurationMs:   clampDurationMs(estimatedDurationSeconds * 1000),
			Instrumental: true,
			Prompt:       ensureInstrumental(prompt),
		},
	}, nil
}

// GenerateEpisodeTheme produces the episode's recurring theme, 30-60 seconds,
// high priority so it wins over scene-level cues.
func (d *MusicDirector) GenerateEpisodeTheme(ctx context.Context, bible *models.WorldBible) (*models.AudioCue, error) {
	var resp musicPromptResponse
	err := d.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "music_prompt",
		Schema:       d.schema,
		Instructions: prompts.MusicInstructions,
		Prompt: fmt.Sprintf("Write the main theme for the whole episode.\nGenre: %s | Tone: %s\nMusic style: %s\nCore conflict: %s",
			bible.WorldRules.Genre, bible.WorldRules.Tone, bible.Audio.MusicStyle, bible.WorldRules.CoreConflict),
	}, &resp)
	if err != nil {
		return nil, err
	}

	prompt := resp.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("Main theme. %s", bible.Audio.MusicStyle)
	}

	return &models.AudioCue{
		Type:           models.CueTypeMusic,
		Trigger:        "[MUSIC:theme]",
		Description:    "Episode theme",
		AudioDirection: bible.Audio.MusicStyle,
		Priority:       10,
		Params: models.CueParams{
			DurationMs:   45_000, // midpoint of the 30-60s theme window
			Instrumental: true,
			Prompt:       ensureInstrumental(prompt),
		},
	}, nil
}

// GenerateTransitionStinger produces a short bridge between two scenes.
// Deterministic: stingers follow the bible's style directly.
func (d *MusicDirector) GenerateTransitionStinger(bible *models.WorldBible, fromScene, toScene int) *models.AudioCue {
	return &models.AudioCue{
		Type:           models.CueTypeMusic,
		Trigger:        fmt.Sprintf("[MUSIC:transition-%d-%d]", fromScene, toScene),
		Description:    fmt.Sprintf("Transition from scene %d to %d", fromScene, toScene),
		AudioDirection: bible.Audio.MusicStyle,
		Priority:       3,
		Params: models.CueParams{
			DurationMs:   6_000, // stingers run 2-10s
			Instrumental: true,
			Prompt:       ensureInstrumental(fmt.Sprintf("Short transition stinger. %s", bible.Audio.MusicStyle)),
		},
	}
}

// GenerateChoiceStingers produces at most three short cues underscoring the
// decision point.
func (d *MusicDirector) GenerateChoiceStingers(bible *models.WorldBible, choices []string) []*models.AudioCue {
	if len(choices) > 3 {
		choices = choices[:3]
	}
	cues := make([]*models.AudioCue, 0, len(choices))
	for i, choice := range choices {
		cues = append(cues, &models.AudioCue{
			Type:           models.CueTypeMusic,
			Trigger:        fmt.Sprintf("[MUSIC:choice-%d]", i+1),
			Description:    "Choice stinger: " + truncateChoice(choice),
			AudioDirection: bible.Audio.MusicStyle,
			Priority:       2,
			Params: models.CueParams{
				DurationMs:   4_000,
				Instrumental: true,
				Prompt:       ensureInstrumental(fmt.Sprintf("Brief tension stinger under a decision point. %s", bible.Audio.MusicStyle)),
			},
		})
	}
	return cues
}

func clampDurationMs(ms int) int {
	if ms < musicMinDurationMs {
		return musicMinDurationMs
	}
	if ms > musicMaxDurationMs {
		return musicMaxDurationMs
	}
	return ms
}

func ensureInstrumental(prompt string) string {
	if strings.Contains(strings.ToLower(prompt), instrumentalMarker) {
		return prompt
	}
	return strings.TrimRight(prompt, ". ") + ". Instrumental only, no vocals."
}

func truncateChoice(s string) string {
	if len(s) <= 48 {
		return s
	}
	return s[:48] + "..."
}
