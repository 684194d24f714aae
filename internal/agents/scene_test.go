package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
)

func TestGenerateScene(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene", `{
		"narration": "The carousel grinds awake. [SFX:creak] Its horses turn to watch you.",
		"choice_a": "Climb onto the carousel",
		"choice_b": "Cut the power at the junction box",
		"state_update": {"location_change": "the carousel plaza"},
		"audio_cues": [
			{"type": "sfx", "trigger": "[SFX:creak]", "description": "rusted metal creak", "audio_direction": "mechanical", "priority": 4, "params": {}},
			{"type": "music", "trigger": "[MUSIC:carousel]", "description": "the waltz starts", "audio_direction": "", "priority": 5, "params": {}}
		]
	}`)
	sg := NewSceneGenerator(gen)

	draft, err := sg.GenerateScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 2, nil)
	require.NoError(t, err)
	assert.NotEqual(t, draft.ChoiceA, draft.ChoiceB)
	assert.Equal(t, "the carousel plaza", draft.Delta.LocationChange)
	for _, cue := range draft.AudioCues {
		assert.Contains(t, cue.AudioDirection, "sparse detuned carousel waltz")
	}
}

func TestGenerateSceneRejectsIdenticalChoices(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene", `{
		"narration": "A fork in the path.",
		"choice_a": "go left",
		"choice_b": "Go Left",
		"state_update": {},
		"audio_cues": []
	}`)
	sg := NewSceneGenerator(gen)

	_, err := sg.GenerateScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 2, nil)
	var schemaErr *genai.SchemaError
	require.True(t, errors.As(err, &schemaErr))
}

func TestGenerateSceneInjectsMusicCue(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene", `{
		"narration": "Silence hangs over the midway.",
		"choice_a": "Search the ticket booth",
		"choice_b": "Follow the footprints",
		"state_update": {},
		"audio_cues": []
	}`)
	sg := NewSceneGenerator(gen)

	draft, err := sg.GenerateScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 3, nil)
	require.NoError(t, err)

	var musicCues int
	for _, cue := range draft.AudioCues {
		if cue.Type == models.CueTypeMusic {
			musicCues++
		}
	}
	assert.Equal(t, 1, musicCues, "every scene carries a background music cue")
}

func TestGenerateSceneBoundsCueCount(t *testing.T) {
	cues := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		cues = append(cues, fmt.Sprintf(
			`{"type": "music", "trigger": "[MUSIC:%d]", "description": "cue %d", "audio_direction": "", "priority": 1, "params": {}}`, i, i))
	}
	gen := newFakeGenerator()
	gen.respond("scene", fmt.Sprintf(`{
		"narration": "Every speaker in the park crackles at once.",
		"choice_a": "Cover your ears",
		"choice_b": "Listen for words",
		"state_update": {},
		"audio_cues": [%s]
	}`, strings.Join(cues, ",")))
	sg := NewSceneGenerator(gen)

	draft, err := sg.GenerateScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 4, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(draft.AudioCues), 6)
}

func TestGenerateFinaleScene(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("finale_scene", `{
		"narration": "Dawn bleeds over the ferris wheel as the gate swings open.",
		"resolution": "You walk out with the three lost days written in the night manager's ledger.",
		"state_update": {},
		"audio_cues": []
	}`)
	sg := NewSceneGenerator(gen)

	draft, err := sg.GenerateFinaleScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 8, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, draft.Resolution)
	assert.Empty(t, draft.ChoiceA)
	assert.Empty(t, draft.ChoiceB)
}

func TestGenerateFinaleSceneRequiresResolution(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("finale_scene", `{"narration": "It ends.", "resolution": "", "state_update": {}, "audio_cues": []}`)
	sg := NewSceneGenerator(gen)

	_, err := sg.GenerateFinaleScene(context.Background(), hauntedParkPremise, testBible(), testCard(), 8, nil)
	var schemaErr *genai.SchemaError
	require.True(t, errors.As(err, &schemaErr))
}
