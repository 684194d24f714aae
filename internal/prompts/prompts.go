// Package prompts holds the system instructions and context formatting for
// every generation agent. Keeping them in one place makes the creative
// contract reviewable without digging through agent code.
package prompts

import (
	"fmt"
	"strings"

	"fablecast/server/internal/models"
)

// WorldBibleInstructions drives the one-time creative specification call.
const WorldBibleInstructions = `You are the story director for an interactive audio drama.
From the listener's premise, produce the episode's world bible: the creative
specification every later scene must obey. Commit to a single genre, tone and
setting. Write world-logic rules as hard invariants, not suggestions. The
audio direction must name a concrete musical identity (instrumentation,
texture, tempo feel) that a composer could follow without seeing the story.
Consistency rules must be checkable: names, places, facts that must never
drift. Keep pacing to one of: fast, moderate, slow.`

// StateInitInstructions seeds the rolling state card from the premise.
const StateInitInstructions = `You track the evolving state of an interactive audio story.
Initialize the state card from the premise: a two-or-three sentence
story-so-far, and zero to three anchors for elements the premise plants that
could pay off later. Anchors start unused. Key facts start empty or with at
most two facts stated outright by the premise.`

// StateUpdateInstructions folds a resolved scene into the state card.
const StateUpdateInstructions = `You track the evolving state of an interactive audio story.
Fold the resolved scene and the listener's chosen option into the state card.
Rewrite story-so-far so it covers the new events; it must not be a copy of the
previous summary. Emit only NEW key facts, not ones already tracked. Plant a
new anchor only when the scene introduced something genuinely worth a later
callback. If the scene paid off an existing anchor, list that anchor's id as
paid off.`

// ContinuityInstructions governs callback analysis.
const ContinuityInstructions = `You are the continuity analyst for an interactive audio story.
Given the state card and the upcoming scene context, decide whether the next
scene should resurface a planted anchor. Prefer anchors dormant for at least
two scenes. Do not force a callback when the context is already building to a
climax, and avoid recommending callbacks in back-to-back scenes. Your output
is advisory; when recommending nothing, set callback_type to "none".`

// SceneInstructions drives one story beat.
const SceneInstructions = `You write one scene of an interactive audio drama, narrated for audio.
Obey the world bible exactly: voice, tone, pacing, world logic and consistency
rules are non-negotiable. End the scene on a decision point with two choices
that lead to genuinely different consequences; both must be plausible from the
narration. Embed bracketed audio trigger tokens like [MUSIC:name] or
[SFX:name] in the narration where cues should fire, and emit a matching audio
cue for each, always including one background-music cue whose direction quotes
the bible's music style. Report scene-local state changes in the state_update
fields, separate from narration.`

// FinaleInstructions closes the episode.
const FinaleInstructions = `You write the final scene of an interactive audio drama, narrated for audio.
Obey the world bible exactly. Resolve the core conflict and land the chosen
branch; pay off dangling anchors where natural. Instead of choices, write a
resolution that gives the listener a definitive ending. Embed bracketed audio
trigger tokens and emit matching cues, including one background-music cue
whose direction quotes the bible's music style.`

// MusicInstructions turns narration into a composition brief.
const MusicInstructions = `You direct music for an interactive audio drama.
Write a short composition prompt for a music-generation model: concrete
instrumentation, texture, tempo feel and dynamics, matching the episode's
music style and the emotional arc of the narration. Instrumental only; never
ask for vocals, lyrics or spoken words.`

// SFXInstructions turns narration into sound-design briefs.
const SFXInstructions = `You design sound effects for an interactive audio drama.
From the narration, list the distinct sounds a listener should hear:
one-shot effects for events, looping ambience for places. Each entry needs a
short synthesis text (what the sound IS, not the story around it), a category
from the episode's sfx categories, a duration in seconds, and a prompt
influence between 0 and 1 (higher = more literal). Mark loop true only for
ambient or atmospheric entries.`

// FormatWorldBible renders the bible as prompt context.
func FormatWorldBible(b *models.WorldBible) string {
	var sb strings.Builder
	sb.WriteString("WORLD BIBLE\n")
	fmt.Fprintf(&sb, "Genre: %s | Style: %s | Tone: %s\n", b.WorldRules.Genre, b.WorldRules.Style, b.WorldRules.Tone)
	fmt.Fprintf(&sb, "Setting: %s (%s)\n", b.WorldRules.Setting, b.WorldRules.Timeframe)
	fmt.Fprintf(&sb, "Core conflict: %s\n", b.WorldRules.CoreConflict)
	if len(b.WorldRules.Invariants) > 0 {
		sb.WriteString("World logic:\n")
		for _, inv := range b.WorldRules.Invariants {
			fmt.Fprintf(&sb, "- %s\n", inv)
		}
	}
	fmt.Fprintf(&sb, "Narrative voice: %s | Pacing: %s | Complexity: %s\n",
		b.Guidelines.Voice, b.Guidelines.Pacing, b.Guidelines.Complexity)
	if len(b.Guidelines.Atmosphere) > 0 {
		fmt.Fprintf(&sb, "Atmosphere: %s\n", strings.Join(b.Guidelines.Atmosphere, ", "))
	}
	fmt.Fprintf(&sb, "Choice philosophy: %s\n", b.Guidelines.ChoicePhilosophy)
	fmt.Fprintf(&sb, "Protagonist: %s | Antagonist: %s\n", b.Characters.Protagonist, b.Characters.Antagonist)
	if len(b.Characters.Supporting) > 0 {
		fmt.Fprintf(&sb, "Supporting cast: %s\n", strings.Join(b.Characters.Supporting, ", "))
	}
	fmt.Fprintf(&sb, "Escalation: %s\n", b.Escalation)
	fmt.Fprintf(&sb, "Story arc: %s\n", b.StoryArc)
	fmt.Fprintf(&sb, "Music style: %s\n", b.Audio.MusicStyle)
	if len(b.Audio.SFXCategories) > 0 {
		fmt.Fprintf(&sb, "SFX categories: %s\n", strings.Join(b.Audio.SFXCategories, ", "))
	}
	fmt.Fprintf(&sb, "Intensity range: %s\n", b.Audio.IntensityRange)
	if len(b.Consistency) > 0 {
		sb.WriteString("Consistency rules:\n")
		for _, rule := range b.Consistency {
			fmt.Fprintf(&sb, "- %s\n", rule)
		}
	}
	return sb.String()
}

// FormatStateCard renders the rolling state as prompt context.
func FormatStateCard(card *models.StateCard) string {
	var sb strings.Builder
	sb.WriteString("CURRENT STATE\n")
	fmt.Fprintf(&sb, "Story so far: %s\n", card.StorySoFar)
	if len(card.KeyFacts) > 0 {
		sb.WriteString("Key facts:\n")
		for _, fact := range card.KeyFacts {
			fmt.Fprintf(&sb, "- %s\n", fact)
		}
	}
	unused := card.UnusedAnchors()
	if len(unused) > 0 {
		sb.WriteString("Dormant anchors (unused, candidates for callbacks):\n")
		for _, a := range unused {
			fmt.Fprintf(&sb, "- [%s] %s (planted in scene %d)\n", a.ID, a.Description, a.CreatedAtScene)
		}
	}
	return sb.String()
}

// FormatCallbackSuggestion renders an advisory suggestion for the scene call.
func FormatCallbackSuggestion(s *models.CallbackSuggestion) string {
	if s == nil || !s.ShouldUseCallback {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("CONTINUITY SUGGESTION (advisory)\n")
	fmt.Fprintf(&sb, "Pay off anchor %s as a %s callback. %s\n", s.SuggestedAnchorID, s.CallbackType, s.Reason)
	if s.IntegrationHint != "" {
		fmt.Fprintf(&sb, "Integration hint: %s\n", s.IntegrationHint)
	}
	return sb.String()
}

// FormatPriorScenes summarizes the realized path for state updates.
func FormatPriorScenes(scenes []*models.SceneRecord) string {
	if len(scenes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("REALIZED PATH\n")
	for _, s := range scenes {
		choice := s.ChosenOption
		if choice == "" {
			choice = "unresolved"
		}
		fmt.Fprintf(&sb, "Scene %d (chose %s): %s\n", s.SceneNumber, choice, truncate(s.Narration, 200))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
