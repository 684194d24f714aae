package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fablecast/server/internal/models"
)

const parkPremise = "A detective wakes up in an abandoned amusement park with no memory of the last three days."

func waitForBranches(t *testing.T, o *Orchestrator, episodeID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, ok := o.Snapshot(episodeID)
		return ok && snap.HasOptionA && snap.HasOptionB
	}, 3*time.Second, 10*time.Millisecond, "speculative children never arrived")
}

func TestStartCreatesEpisode(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, queue := testOrchestrator(gen, store)

	result, err := o.Start(context.Background(), StartRequest{Premise: parkPremise, Title: "The Midway"})
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusActive, result.Episode.Status)
	assert.Equal(t, 1, result.FirstScene.SceneNumber)
	assert.NotEqual(t, result.FirstScene.ChoiceA, result.FirstScene.ChoiceB)
	assert.Equal(t, 1, gen.callCount("world_bible"))

	waitForBranches(t, o, result.Episode.ID)
	assert.Eventually(t, func() bool { return queue.count() > 0 },
		2*time.Second, 10*time.Millisecond, "scene audio never queued")
}

func TestStartIsIdempotent(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	first, err := o.Start(context.Background(), StartRequest{EpisodeID: "ep-idem", Premise: parkPremise})
	require.NoError(t, err)

	replay, err := o.Start(context.Background(), StartRequest{EpisodeID: "ep-idem", Premise: parkPremise})
	require.NoError(t, err)
	assert.Equal(t, first.FirstScene.ID, replay.FirstScene.ID)
	assert.Equal(t, 1, gen.callCount("world_bible"), "a retried start must not regenerate the bible")
}

func TestStartRejectsPremiseOutOfBounds(t *testing.T) {
	o, _ := testOrchestrator(newFakeGenerator(), newMemStore())
	_, err := o.Start(context.Background(), StartRequest{Premise: "short"})
	assert.Error(t, err)
}

func TestProcessChoicePromotesCandidate(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID
	waitForBranches(t, o, episodeID)

	result, err := o.ProcessChoice(context.Background(), episodeID, models.ChoiceA, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scene.SceneNumber)
	assert.Contains(t, result.StateCard.KeyFacts, "The carousel runs without power.")
	assert.True(t, result.AudioGenerated, "the transition stinger was queued")

	scenes, err := store.ListScenes(episodeID)
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, models.ChoiceA, scenes[0].ChosenOption, "parent scene records the chosen branch")
	assert.Equal(t, "", scenes[1].ChosenOption)

	episode, err := store.GetEpisode(episodeID)
	require.NoError(t, err)
	assert.Equal(t, 2, episode.TotalScenes)
	assert.Equal(t, 1, episode.TotalChoices)
}

func TestProcessChoiceWithoutCandidate(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	gen.fail("scene", errors.New("provider down")) // after start this kills speculation
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	// start fails scene 1 too, so seed the episode through a working start
	gen2 := newFakeGenerator()
	scriptGenerator(gen2)
	o2, _ := testOrchestrator(gen2, store)
	started, err := o2.Start(context.Background(), StartRequest{EpisodeID: "ep-empty", Premise: parkPremise})
	require.NoError(t, err)

	// o has no session; rehydration finds no cached window and no candidates
	_, err = o.ProcessChoice(context.Background(), started.Episode.ID, models.ChoiceA, "user1")
	assert.ErrorIs(t, err, ErrNoPregeneratedScene)
}

func TestProcessChoiceRetryKeepsCandidate(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID
	waitForBranches(t, o, episodeID)

	// a transient tracker failure must not consume the pre-generated branch
	gen.fail("state_update", errors.New("provider timeout"))
	_, err = o.ProcessChoice(context.Background(), episodeID, models.ChoiceA, "user1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPregeneratedScene)

	gen.fail("state_update", nil)
	result, err := o.ProcessChoice(context.Background(), episodeID, models.ChoiceA, "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scene.SceneNumber)
}

func TestProcessChoiceReportsAudioFailure(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, queue := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID
	waitForBranches(t, o, episodeID)

	queue.failWith(errors.New("queue full"))
	result, err := o.ProcessChoice(context.Background(), episodeID, models.ChoiceB, "user1")
	require.NoError(t, err, "audio trouble never blocks the narrative")
	assert.False(t, result.AudioGenerated)
}

func TestProcessChoiceInvalidChoice(t *testing.T) {
	o, _ := testOrchestrator(newFakeGenerator(), newMemStore())
	_, err := o.ProcessChoice(context.Background(), "ep", "C", "user1")
	assert.Error(t, err)
}

func TestProcessChoiceUnknownEpisode(t *testing.T) {
	o, _ := testOrchestrator(newFakeGenerator(), newMemStore())
	_, err := o.ProcessChoice(context.Background(), "missing", models.ChoiceA, "user1")
	assert.ErrorIs(t, err, ErrEpisodeNotFound)
}

func TestProcessChoiceWhileBusy(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	o, _ := testOrchestrator(gen, newMemStore())

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	waitForBranches(t, o, started.Episode.ID)

	session, err := o.sessionFor(context.Background(), started.Episode)
	require.NoError(t, err)
	require.True(t, session.acquire())
	defer session.release()

	_, err = o.ProcessChoice(context.Background(), started.Episode.ID, models.ChoiceB, "user2")
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestFinishCompletesEpisode(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID
	waitForBranches(t, o, episodeID)

	result, err := o.Finish(context.Background(), episodeID, models.ChoiceB, "user1")
	require.NoError(t, err)
	assert.True(t, result.Scene.IsFinale)
	assert.NotEmpty(t, result.Scene.Resolution)

	episode, err := store.GetEpisode(episodeID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusCompleted, episode.Status)
	assert.Equal(t, 2, episode.TotalScenes, "scene 1 plus the finale")
	assert.Equal(t, 1, episode.TotalChoices)

	// the completed episode accepts no further choices
	_, err = o.ProcessChoice(context.Background(), episodeID, models.ChoiceA, "user1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAbandonEpisode(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID

	require.NoError(t, o.Abandon(context.Background(), episodeID, "user1"))

	episode, err := store.GetEpisode(episodeID)
	require.NoError(t, err)
	assert.Equal(t, models.EpisodeStatusAbandoned, episode.Status)

	assert.ErrorIs(t, o.Abandon(context.Background(), episodeID, "user1"), ErrInvalidState)
	_, err = o.ProcessChoice(context.Background(), episodeID, models.ChoiceA, "user1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRegenerateChildrenRefillsWindow(t *testing.T) {
	gen := newFakeGenerator()
	scriptGenerator(gen)
	store := newMemStore()
	o, _ := testOrchestrator(gen, store)

	started, err := o.Start(context.Background(), StartRequest{Premise: parkPremise})
	require.NoError(t, err)
	episodeID := started.Episode.ID
	waitForBranches(t, o, episodeID)

	// simulate a restarted instance that lost its speculative window
	o2, _ := testOrchestrator(gen, store)
	require.NoError(t, o2.RegenerateChildren(context.Background(), episodeID))
	waitForBranches(t, o2, episodeID)
}
