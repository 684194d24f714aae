package engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"fablecast/server/internal/models"
)

// pregenerateChildren speculatively generates the scene behind each choice of
// the committed scene so the next ProcessChoice answers from the window. Runs
// in the background after every commit.
//
// One continuity pass covers both branches; the state tracker only projects
// the listener's choice locally, without a provider round trip. Results are
// installed under the generation sequence captured before the work started:
// if the listener chose (or the episode ended) in the meantime, the install
// is refused and the drafts are discarded.
func (o *Orchestrator) pregenerateChildren(session *Session, parent *models.SceneRecord) {
	if parent == nil || parent.IsFinale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerateTimeout)
	defer cancel()

	seq := session.seq()
	card := session.cardSnapshot()
	childNumber := parent.SceneNumber + 1

	upcoming := fmt.Sprintf("Scene %d. The listener faces: (A) %s (B) %s",
		childNumber, parent.ChoiceA, parent.ChoiceB)
	suggestion, err := o.continuity.AnalyzeCallbacks(ctx, session.EpisodeID, card, upcoming)
	if err != nil {
		log.Printf("[Orchestrator] continuity pass failed for %s scene %d: %v", session.EpisodeID, childNumber, err)
		suggestion = nil
	}

	branches := []struct {
		choice string
		text   string
	}{
		{models.ChoiceA, parent.ChoiceA},
		{models.ChoiceB, parent.ChoiceB},
	}

	var wg sync.WaitGroup
	for _, b := range branches {
		wg.Add(1)
		go func(choice, text string) {
			defer wg.Done()
			projected := o.tracker.ProjectForChoice(card, text)
			draft, err := o.scenes.GenerateScene(ctx, session.Premise, session.Bible, projected, childNumber, suggestion)
			if err != nil {
				// Partial failure is acceptable; the repair path can refill.
				log.Printf("[Orchestrator] pre-generation of branch %s failed for %s scene %d: %v",
					choice, session.EpisodeID, childNumber, err)
				return
			}
			if !session.storeCandidate(seq, choice, &Candidate{Draft: draft, SceneNumber: childNumber}) {
				log.Printf("[Orchestrator] discarding stale branch %s for %s scene %d", choice, session.EpisodeID, childNumber)
			}
		}(b.choice, b.text)
	}
	wg.Wait()

	o.saveWindow(session)
	o.publish(session.EpisodeID, "branches_ready", childNumber)
}
