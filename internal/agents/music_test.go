package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fablecast/server/internal/models"
)

func TestGenerateSceneMusic(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("music_prompt", `{"prompt": "A slow waltz on a detuned calliope", "mood": "uneasy"}`)
	director := NewMusicDirector(gen)

	cue, err := director.GenerateSceneMusic(context.Background(), testBible(), "The carousel turns.", 2, 90)
	require.NoError(t, err)
	assert.Equal(t, models.CueTypeMusic, cue.Type)
	assert.True(t, cue.Params.Instrumental)
	assert.Contains(t, strings.ToLower(cue.Params.Prompt), instrumentalMarker)
	assert.Equal(t, 90_000, cue.Params.DurationMs)
}

func TestGenerateSceneMusicClampsDuration(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("music_prompt", `{"prompt": "stab", "mood": "sharp"}`)
	director := NewMusicDirector(gen)

	short, err := director.GenerateSceneMusic(context.Background(), testBible(), "n", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, musicMinDurationMs, short.Params.DurationMs)

	long, err := director.GenerateSceneMusic(context.Background(), testBible(), "n", 1, 600)
	require.NoError(t, err)
	assert.Equal(t, musicMaxDurationMs, long.Params.DurationMs)
}

func TestGenerateSceneMusicKeepsExistingMarker(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("music_prompt", `{"prompt": "Carousel waltz, instrumental only, no voices", "mood": "eerie"}`)
	director := NewMusicDirector(gen)

	cue, err := director.GenerateSceneMusic(context.Background(), testBible(), "n", 1, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.ToLower(cue.Params.Prompt), instrumentalMarker))
}

func TestGenerateSceneMusicEmptyPromptFallback(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("music_prompt", `{"prompt": "", "mood": ""}`)
	director := NewMusicDirector(gen)

	cue, err := director.GenerateSceneMusic(context.Background(), testBible(), "n", 1, 60)
	require.NoError(t, err)
	assert.Contains(t, cue.Params.Prompt, "horror")
	assert.Contains(t, strings.ToLower(cue.Params.Prompt), instrumentalMarker)
}

func TestGenerateEpisodeTheme(t *testing.T) {
	gen := newFakeGenerator()
	gen.respond("music_prompt", `{"prompt": "The park's leitmotif", "mood": "wistful"}`)
	director := NewMusicDirector(gen)

	theme, err := director.GenerateEpisodeTheme(context.Background(), testBible())
	require.NoError(t, err)
	assert.Equal(t, 10, theme.Priority)
	assert.GreaterOrEqual(t, theme.Params.DurationMs, 30_000)
	assert.LessOrEqual(t, theme.Params.DurationMs, 60_000)
}

func TestGenerateTransitionStinger(t *testing.T) {
	gen := newFakeGenerator()
	director := NewMusicDirector(gen)

	stinger := director.GenerateTransitionStinger(testBible(), 2, 3)
	assert.Contains(t, stinger.Trigger, "2-3")
	assert.True(t, stinger.Params.Instrumental)
	assert.Equal(t, 0, gen.callCount("music_prompt"), "stingers are deterministic")
}

func TestGenerateChoiceStingersBounded(t *testing.T) {
	director := NewMusicDirector(newFakeGenerator())

	stingers := director.GenerateChoiceStingers(testBible(), []string{"a", "b", "c", "d", "e"})
	assert.LessOrEqual(t, len(stingers), 3)
	for _, s := range stingers {
		assert.Contains(t, strings.ToLower(s.Params.Prompt), instrumentalMarker)
	}
}
