package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
	"fablecast/server/internal/prompts"
)

// stateInitResponse is the structured output for state initialization.
type stateInitResponse struct {
	StorySoFar     string   `json:"story_so_far" jsonschema_description:"Opening summary derived from the premise"`
	KeyFacts       []string `json:"key_facts" jsonschema_description:"Facts stated outright by the premise, at most two"`
	InitialAnchors []string `json:"initial_anchors" jsonschema_description:"Descriptions of elements the premise plants for later payoff"`
}

// stateUpdateResponse is the structured output for folding a resolved scene.
type stateUpdateResponse struct {
	StorySoFar       string   `json:"story_so_far" jsonschema_description:"Rewritten summary covering the new scene"`
	NewKeyFacts      []string `json:"new_key_facts" jsonschema_description:"Facts established by this scene, not already tracked"`
	NewAnchors       []string `json:"new_anchors" jsonschema_description:"Descriptions of new elements worth a later callback"`
	PaidOffAnchorIDs []string `json:"paid_off_anchor_ids" jsonschema_description:"IDs of existing anchors this scene paid off"`
}

// StateTracker owns the rolling state card. It is the only component that
// mutates it, and only at committed scene transitions; speculative branches
// use ProjectForChoice instead.
type StateTracker struct {
	gen          genai.Generator
	initSchema   *jsonschema.Schema
	updateSchema *jsonschema.Schema
	maxKeyFacts  int
}

func NewStateTracker(gen genai.Generator, maxKeyFacts int) *StateTracker {
	if maxKeyFacts <= 0 {
		maxKeyFacts = 10
	}
	return &StateTracker{
		gen:          gen,
		initSchema:   genai.SchemaFor[stateInitResponse](),
		updateSchema: genai.SchemaFor[stateUpdateResponse](),
		maxKeyFacts:  maxKeyFacts,
	}
}

// Initialize seeds the state card from the premise.
func (t *StateTracker) Initialize(ctx context.Context, premise string) (*models.StateCard, error) {
	var resp stateInitResponse
	err := t.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "state_init",
		Schema:       t.initSchema,
		Instructions: prompts.StateInitInstructions,
		Prompt:       fmt.Sprintf("Premise: %s", premise),
	}, &resp)
	if err != nil {
		return nil, err
	}

	card := &models.StateCard{
		StorySoFar: resp.StorySoFar,
		KeyFacts:   resp.KeyFacts,
	}
	if card.StorySoFar == "" {
		card.StorySoFar = premise
	}
	for _, desc := range resp.InitialAnchors {
		card.Anchors = append(card.Anchors, models.Anchor{
			ID:             uuid.NewString(),
			Description:    desc,
			IsUsed:         false,
			CreatedAtScene: 0,
		})
	}
	return card, nil
}

// Update folds the resolved scene and chosen option into a new state card.
// The input card is never mutated. The returned card is always complete even
// when the generation output is sparse.
func (t *StateTracker) Update(ctx context.Context, card *models.StateCard, scene *models.SceneRecord, chosen string, prior []*models.SceneRecord) (*models.StateCard, error) {
	choiceText := scene.ChoiceA
	if chosen == models.ChoiceB {
		choiceText = scene.ChoiceB
	}

	var sb strings.Builder
	sb.WriteString(prompts.FormatStateCard(card))
	if path := prompts.FormatPriorScenes(prior); path != "" {
		sb.WriteString("\n")
		sb.WriteString(path)
	}
	fmt.Fprintf(&sb, "\nRESOLVED SCENE %d\nNarration: %s\n", scene.SceneNumber, scene.Narration)
	fmt.Fprintf(&sb, "Listener chose option %s: %s\n", chosen, choiceText)

	var resp stateUpdateResponse
	err := t.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "state_update",
		Schema:       t.updateSchema,
		Instructions: prompts.StateUpdateInstructions,
		Prompt:       sb.String(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	next := card.Clone()
	if resp.StorySoFar != "" {
		next.StorySoFar = resp.StorySoFar
	}
	// A byte-identical summary after a non-trivial scene means the model
	// ignored the fold. Flag it and force the chosen branch into the summary
	// so downstream generations still see the new content.
	if next.StorySoFar == card.StorySoFar && strings.TrimSpace(scene.Narration) != "" {
		log.Printf("[StateTracker] summary unchanged after scene %d, folding choice text locally", scene.SceneNumber)
		next.StorySoFar = card.StorySoFar + " Then: " + choiceText
	}

	next.KeyFacts = append(next.KeyFacts, resp.NewKeyFacts...)
	for _, desc := range resp.NewAnchors {
		next.Anchors = append(next.Anchors, models.Anchor{
			ID:             uuid.NewString(),
			Description:    desc,
			IsUsed:         false,
			CreatedAtScene: scene.SceneNumber,
		})
	}
	for _, id := range resp.PaidOffAnchorIDs {
		next = t.MarkAnchorUsed(next, id)
	}
	return next, nil
}

// MarkAnchorUsed sets the used flag on one anchor. Pure, no external call.
// The transition only ever goes from unused to used.
func (t *StateTracker) MarkAnchorUsed(card *models.StateCard, anchorID string) *models.StateCard {
	next := card.Clone()
	for i := range next.Anchors {
		if next.Anchors[i].ID == anchorID {
			next.Anchors[i].IsUsed = true
		}
	}
	return next
}

// Cleanup drops unused anchors older than maxAgeScenes and truncates key
// facts to the configured cap. Pure and idempotent: applying it twice with
// the same arguments yields the same card.
func (t *StateTracker) Cleanup(card *models.StateCard, currentScene, maxAgeScenes int) *models.StateCard {
	next := &models.StateCard{StorySoFar: card.StorySoFar}

	for _, a := range card.Anchors {
		stale := !a.IsUsed && currentScene-a.CreatedAtScene >= maxAgeScenes
		if stale {
			continue
		}
		next.Anchors = append(next.Anchors, a)
	}

	facts := card.KeyFacts
	if len(facts) > t.maxKeyFacts {
		facts = facts[len(facts)-t.maxKeyFacts:]
	}
	next.KeyFacts = append([]string(nil), facts...)

	return next
}

// ProjectForChoice builds the cheap local state projection used for
// speculative child generation: the choice text is folded into the summary
// and recorded as a key fact, with no provider call. The projection is
// disposable; the canonical card is updated only when a choice is committed.
func (t *StateTracker) ProjectForChoice(card *models.StateCard, choiceText string) *models.StateCard {
	next := card.Clone()
	next.StorySoFar = card.StorySoFar + " " + choiceText
	next.KeyFacts = append(next.KeyFacts, "Chose: "+choiceText)
	return next
}
