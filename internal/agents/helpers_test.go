package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fablecast/server/internal/genai"
	"fablecast/server/internal/models"
)

// fakeGenerator serves canned JSON payloads keyed by schema name and counts
// calls, so tests can assert which agents hit the provider and how often.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeGenerator) respond(schema, payload string) {
	f.mu.Lock()
	f.responses[schema] = payload
	f.mu.Unlock()
}

func (f *fakeGenerator) fail(schema string, err error) {
	f.mu.Lock()
	f.errs[schema] = err
	f.mu.Unlock()
}

func (f *fakeGenerator) callCount(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, req genai.StructuredRequest, out any) error {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	err := f.errs[req.SchemaName]
	payload, ok := f.responses[req.SchemaName]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no canned response for schema %q", req.SchemaName)
	}
	return json.Unmarshal([]byte(payload), out)
}

func testBible() *models.WorldBible {
	return &models.WorldBible{
		WorldRules: models.WorldRules{
			Genre:        "horror",
			Tone:         "tense",
			Setting:      "an abandoned amusement park",
			CoreConflict: "escape before dawn",
		},
		Guidelines: models.StorytellingGuidelines{
			Voice:  "second person present tense",
			Pacing: "moderate",
		},
		Audio: models.AudioDirection{
			MusicStyle:     "sparse detuned carousel waltz",
			SFXCategories:  []string{"mechanical", "ambient"},
			IntensityRange: "whisper-quiet to sudden stabs",
		},
	}
}

func testCard() *models.StateCard {
	return &models.StateCard{
		StorySoFar: "You slipped through the rusted gate at midnight.",
		KeyFacts:   []string{"The gate locked behind you."},
		Anchors: []models.Anchor{
			{ID: "anchor-1", Description: "a ticket stub with tomorrow's date", CreatedAtScene: 1},
		},
	}
}
