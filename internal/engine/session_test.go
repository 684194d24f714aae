package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fablecast/server/internal/models"
)

func testSession() *Session {
	return newSession("ep1", "premise", &models.WorldBible{}, &models.StateCard{StorySoFar: "s"})
}

func TestSessionBusyFlag(t *testing.T) {
	s := testSession()

	require.True(t, s.acquire())
	assert.False(t, s.acquire(), "second acquire must fail while busy")
	s.release()
	assert.True(t, s.acquire())
}

func TestSessionCommitClearsCandidates(t *testing.T) {
	s := testSession()
	seq := s.seq()
	require.True(t, s.storeCandidate(seq, models.ChoiceA, &Candidate{SceneNumber: 2}))
	require.True(t, s.storeCandidate(seq, models.ChoiceB, &Candidate{SceneNumber: 2}))

	s.commit(&models.SceneRecord{SceneNumber: 2}, &models.StateCard{})

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.CurrentSceneNumber)
	assert.False(t, snap.HasOptionA)
	assert.False(t, snap.HasOptionB)
}

func TestSessionStaleCandidateRejected(t *testing.T) {
	s := testSession()
	seq := s.seq()

	// the session moves on before the speculative result lands
	s.commit(&models.SceneRecord{SceneNumber: 2}, &models.StateCard{})

	assert.False(t, s.storeCandidate(seq, models.ChoiceA, &Candidate{SceneNumber: 2}))
	snap := s.Snapshot()
	assert.False(t, snap.HasOptionA)
}

func TestSessionCandidateIsAPeek(t *testing.T) {
	s := testSession()
	seq := s.seq()
	require.True(t, s.storeCandidate(seq, models.ChoiceA, &Candidate{SceneNumber: 2}))
	require.True(t, s.storeCandidate(seq, models.ChoiceB, &Candidate{SceneNumber: 2}))

	require.NotNil(t, s.candidate(models.ChoiceA))
	assert.NotNil(t, s.candidate(models.ChoiceA), "a read must not consume the candidate")
	assert.NotNil(t, s.candidate(models.ChoiceB))

	s.commit(&models.SceneRecord{SceneNumber: 2}, &models.StateCard{})
	assert.Nil(t, s.candidate(models.ChoiceA), "commit discards both candidates")
	assert.Nil(t, s.candidate(models.ChoiceB))
}

func TestSessionCardSnapshotIsACopy(t *testing.T) {
	s := testSession()
	snap := s.cardSnapshot()
	snap.StorySoFar = "mutated"
	snap.KeyFacts = append(snap.KeyFacts, "fact")

	assert.Equal(t, "s", s.cardSnapshot().StorySoFar)
	assert.Empty(t, s.cardSnapshot().KeyFacts)
}
