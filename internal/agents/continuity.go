package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/invopop/jsonschema"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
	"fablecast/server/internal/prompts"
)

// AnchorRetriever finds previously planted anchors semantically related to
// the upcoming context. Implemented by the rag anchor store; optional.
type AnchorRetriever interface {
	SearchRelated(ctx context.Context, episodeID, query string, limit int) ([]string, error)
}

// ContinuityAnalyzer inspects the state card plus upcoming context and
// recommends whether to resurface a dormant anchor. Its output is advisory:
// the scene generator may ignore it, and analyzer failures degrade to "no
// callback" rather than failing the branch.
type ContinuityAnalyzer struct {
	gen       genai.Generator
	retriever AnchorRetriever
	schema    *jsonschema.Schema
}

func NewContinuityAnalyzer(gen genai.Generator, retriever AnchorRetriever) *ContinuityAnalyzer {
	return &ContinuityAnalyzer{
		gen:       gen,
		retriever: retriever,
		schema:    genai.SchemaFor[models.CallbackSuggestion](),
	}
}

var noCallback = models.CallbackSuggestion{
	ShouldUseCallback: false,
	CallbackType:      "none",
	Reason:            "no dormant anchors available",
}

// AnalyzeCallbacks returns a callback suggestion for the upcoming scene.
// Only unused anchors are considered; with none available the provider is
// not called at all.
func (a *ContinuityAnalyzer) AnalyzeCallbacks(ctx context.Context, episodeID string, card *models.StateCard, upcomingContext string) (*models.CallbackSuggestion, error) {
	unused := card.UnusedAnchors()
	if len(unused) == 0 {
		out := noCallback
		return &out, nil
	}

	var sb strings.Builder
	sb.WriteString(prompts.FormatStateCard(card))
	fmt.Fprintf(&sb, "\nUPCOMING CONTEXT\n%s\n", upcomingContext)

	if a.retriever != nil {
		related, err := a.retriever.SearchRelated(ctx, episodeID, upcomingContext, 3)
		if err != nil {
			log.Printf("[Continuity] anchor retrieval failed, continuing without: %v", err)
		} else if len(related) > 0 {
			sb.WriteString("\nSemantically related planted elements:\n")
			for _, r := range related {
				fmt.Fprintf(&sb, "- %s\n", r)
			}
		}
	}

	var suggestion models.CallbackSuggestion
	err := a.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "callback_suggestion",
		Schema:       a.schema,
		Instructions: prompts.ContinuityInstructions,
		Prompt:       sb.String(),
	}, &suggestion)
	if err != nil {
		// Advisory component: degrade, never block the branch.
		log.Printf("[Continuity] analysis failed, defaulting to no callback: %v", err)
		out := noCallback
		out.Reason = "continuity analysis unavailable"
		return &out, nil
	}

	// A recommendation must point at an anchor that is actually dormant.
	if suggestion.ShouldUseCallback && !hasUnusedAnchor(unused, suggestion.SuggestedAnchorID) {
		suggestion.ShouldUseCallback = false
		suggestion.CallbackType = "none"
		suggestion.Reason = "suggested anchor not dormant"
		suggestion.SuggestedAnchorID = ""
	}

	return &suggestion, nil
}

func hasUnusedAnchor(anchors []models.Anchor, id string) bool {
	for _, a := range anchors {
		if a.ID == id {
			return true
		}
	}
	return false
}
