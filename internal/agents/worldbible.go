// Package agents contains the specialized generation agents the orchestrator
// composes: world bible builder, state tracker, continuity analyzer, scene
// generator and the two audio directors. Each is a thin wrapper over one
// structured generation call plus the business rules its output must satisfy.
package agents

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
	"fablecast/server/internal/prompts"
)

// Premise length bounds accepted by the builder.
const (
	PremiseMinLength = 10
	PremiseMaxLength = 500
)

// WorldBibleBuilder derives the one-time creative specification from the
// premise. It is invoked exactly once per episode; every other agent receives
// the bible as a parameter and never regenerates it.
type WorldBibleBuilder struct {
	gen    genai.Generator
	schema *jsonschema.Schema
}

func NewWorldBibleBuilder(gen genai.Generator) *WorldBibleBuilder {
	return &WorldBibleBuilder{
		gen:    gen,
		schema: genai.SchemaFor[models.WorldBible](),
	}
}

// CreateWorldBible generates a fully populated world bible. A schema failure
// here is fatal to episode creation; there is nothing to fall back to.
func (b *WorldBibleBuilder) CreateWorldBible(ctx context.Context, premise string) (*models.WorldBible, error) {
	if len(premise) < PremiseMinLength || len(premise) > PremiseMaxLength {
		return nil, fmt.Errorf("premise must be %d-%d characters, got %d",
			PremiseMinLength, PremiseMaxLength, len(premise))
	}

	var bible models.WorldBible
	err := b.gen.GenerateStructured(ctx, genai.StructuredRequest{
		SchemaName:   "world_bible",
		Schema:       b.schema,
		Instructions: prompts.WorldBibleInstructions,
		Prompt:       fmt.Sprintf("Premise: %s", premise),
	}, &bible)
	if err != nil {
		return nil, err
	}

	if bible.WorldRules.Genre == "" || bible.WorldRules.Tone == "" {
		return nil, &genai.SchemaError{
			Schema: "world_bible",
			Err:    fmt.Errorf("bible missing genre or tone"),
		}
	}
	if bible.Audio.MusicStyle == "" {
		bible.Audio.MusicStyle = fmt.Sprintf("%s score matching a %s tone", bible.WorldRules.Genre, bible.WorldRules.Tone)
	}

	return &bible, nil
}
