package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSceneSFX(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene_sfx", `{"effects": [
		{"text": "rusty gate groan", "category": "mechanical", "duration_seconds": 3, "prompt_influence": 0.7, "loop": false},
		{"text": "wind through dead midway", "category": "ambient", "duration_seconds": 20, "prompt_influence": 0.4, "loop": true}
	]}`)
	director := NewSFXDirector(gen)

	cues, err := director.GenerateSceneSFX(context.Background(), testBible(), "The gate groans.", 2)
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.False(t, cues[0].Params.Loop, "non-ambient categories never loop")
	assert.True(t, cues[1].Params.Loop)
}

func TestGenerateSceneSFXBoundsAndClamps(t *testing.T) {
	entries := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"text": "effect %d", "category": "impact", "duration_seconds": 99, "prompt_influence": 1.5, "loop": true}`, i))
	}
	gen := newFakeGenerator()
	gen.respond("scene_sfx", fmt.Sprintf(`{"effects": [%s]}`, strings.Join(entries, ",")))
	director := NewSFXDirector(gen)

	cues, err := director.GenerateSceneSFX(context.Background(), testBible(), "chaos", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(cues), maxSFXPerScene)
	for _, cue := range cues {
		assert.LessOrEqual(t, cue.Params.DurationSeconds, sfxMaxDurationSec)
		assert.GreaterOrEqual(t, cue.Params.DurationSeconds, sfxMinDurationSec)
		assert.LessOrEqual(t, cue.Params.PromptInfluence, 1.0)
		assert.False(t, cue.Params.Loop)
	}
}

func TestGenerateSceneSFXSkipsEmptyText(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene_sfx", `{"effects": [
		{"text": "  ", "category": "ambient", "duration_seconds": 5, "prompt_influence": 0.5, "loop": false},
		{"text": "distant calliope", "category": "ambient", "duration_seconds": 5, "prompt_influence": 0.5, "loop": false}
	]}`)
	director := NewSFXDirector(gen)

	cues, err := director.GenerateSceneSFX(context.Background(), testBible(), "n", 1)
	require.NoError(t, err)
	require.Len(t, cues, 1)
	assert.Equal(t, "distant calliope", cues[0].Params.Prompt)
}

func TestGenerateAmbientSoundscape(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("scene_sfx", `{"effects": [
		{"text": "hall of mirrors hum", "category": "ambient", "duration_seconds": 90, "prompt_influence": 0.8, "loop": true}
	]}`)
	director := NewSFXDirector(gen)

	cue, err := director.GenerateAmbientSoundscape(context.Background(), testBible(), "the hall of mirrors")
	require.NoError(t, err)
	assert.True(t, cue.Params.Loop)
	assert.GreaterOrEqual(t, cue.Params.DurationSeconds, 15.0)
	assert.LessOrEqual(t, cue.Params.DurationSeconds, 30.0)
	assert.Equal(t, 0.5, cue.Params.PromptInfluence)
}

func TestGenerateImpactEffect(t *testing.T) {
	gen := newFakeGenerator()
	director := NewSFXDirector(gen)

	cue := director.GenerateImpactEffect(testBible(), "the ferris wheel brake snaps")
	assert.Equal(t, 2.0, cue.Params.DurationSeconds)
	assert.Equal(t, 0.9, cue.Params.PromptInfluence)
	assert.False(t, cue.Params.Loop)
	assert.Equal(t, 0, gen.callCount("scene_sfx"), "impacts are deterministic")
}
