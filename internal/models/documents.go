package models

// WorldBible is the one-time creative specification derived from the premise.
// It is generated once per episode and referenced, never regenerated, by every
// later scene generation call. Creative "style" fields are free text guided by
// the prompt vocabulary rather than closed enums.
type WorldBible struct {
	WorldRules    WorldRules             `json:"world_rules" jsonschema_description:"Hard rules of the story world"`
	Guidelines    StorytellingGuidelines `json:"storytelling_guidelines" jsonschema_description:"How scenes should be narrated"`
	Characters    CharacterFramework     `json:"character_framework" jsonschema_description:"Protagonist and supporting cast framework"`
	Escalation    string                 `json:"conflict_escalation" jsonschema_description:"How the central conflict should escalate scene over scene"`
	Audio         AudioDirection         `json:"audio_direction" jsonschema_description:"Musical and sound-design identity of the episode"`
	StoryArc      string                 `json:"story_arc" jsonschema_description:"Overall arc guidance from opening to finale"`
	Consistency   []string               `json:"consistency_rules" jsonschema_description:"Hard consistency rules every scene must respect"`
	Rationale     string                 `json:"rationale" jsonschema_description:"Why these creative choices fit the premise"`
}

// WorldRules captures the invariants of the story world.
type WorldRules struct {
	Genre        string   `json:"genre" jsonschema_description:"Primary genre, e.g. horror, mystery, sci-fi"`
	Style        string   `json:"style" jsonschema_description:"Narrative style in a few words"`
	Tone         string   `json:"tone" jsonschema_description:"Emotional tone, e.g. tense, playful, melancholic"`
	Setting      string   `json:"setting" jsonschema_description:"Where the story takes place"`
	Timeframe    string   `json:"timeframe" jsonschema_description:"When the story takes place"`
	CoreConflict string   `json:"core_conflict" jsonschema_description:"The central conflict driving the episode"`
	Invariants   []string `json:"world_logic" jsonschema_description:"World-logic rules that must never be violated"`
}

// StorytellingGuidelines steer the scene generator's narration.
type StorytellingGuidelines struct {
	Voice            string   `json:"narrative_voice" jsonschema_description:"Narrative voice, e.g. second person present tense"`
	Pacing           string   `json:"pacing" jsonschema:"enum=fast,enum=moderate,enum=slow" jsonschema_description:"Scene pacing"`
	Complexity       string   `json:"complexity" jsonschema_description:"Plot complexity guidance"`
	Atmosphere       []string `json:"atmosphere_keywords" jsonschema_description:"Keywords that set the atmosphere"`
	ChoicePhilosophy string   `json:"choice_philosophy" jsonschema_description:"What kind of choices the listener should face"`
}

// CharacterFramework describes the cast without pinning every detail.
type CharacterFramework struct {
	Protagonist string   `json:"protagonist" jsonschema_description:"Who the listener plays"`
	Supporting  []string `json:"supporting_cast" jsonschema_description:"Recurring supporting characters"`
	Antagonist  string   `json:"antagonist" jsonschema_description:"The opposing force, person or not"`
}

// AudioDirection fixes the episode's sonic identity so music and SFX stay
// consistent across scenes.
type AudioDirection struct {
	MusicStyle     string   `json:"music_style" jsonschema_description:"Musical identity, free text, e.g. sparse detuned carousel waltz"`
	SFXCategories  []string `json:"sfx_categories" jsonschema_description:"Sound-effect families this episode draws from"`
	IntensityRange string   `json:"intensity_range" jsonschema_description:"How far intensity may swing, e.g. whisper-quiet to sudden stabs"`
}

// StateCard is the rolling narrative-state document. It is mutated only by the
// state tracker at committed scene transitions; speculative branches use a
// local projection instead.
type StateCard struct {
	StorySoFar string   `json:"story_so_far" jsonschema_description:"Rolling prose summary of everything that has happened"`
	KeyFacts   []string `json:"key_facts" jsonschema_description:"Short factual bullets, most recent last"`
	Anchors    []Anchor `json:"anchors" jsonschema_description:"Narrative elements planted for later callbacks"`
}

// Anchor is a narrative element flagged for a potential future callback.
// IsUsed transitions false to true at most once.
type Anchor struct {
	ID             string `json:"id" jsonschema_description:"Stable identifier for this anchor"`
	Description    string `json:"description" jsonschema_description:"What was planted and why it might pay off"`
	IsUsed         bool   `json:"is_used" jsonschema_description:"Whether a scene has already paid this anchor off"`
	CreatedAtScene int    `json:"created_at_scene" jsonschema_description:"Scene number when the anchor was planted"`
}

// Clone returns a deep copy so speculative projections never alias the
// canonical card.
func (c *StateCard) Clone() *StateCard {
	out := &StateCard{StorySoFar: c.StorySoFar}
	out.KeyFacts = append([]string(nil), c.KeyFacts...)
	out.Anchors = append([]Anchor(nil), c.Anchors...)
	return out
}

// UnusedAnchors returns the anchors still eligible for callbacks.
func (c *StateCard) UnusedAnchors() []Anchor {
	var out []Anchor
	for _, a := range c.Anchors {
		if !a.IsUsed {
			out = append(out, a)
		}
	}
	return out
}

// StateDelta is the scene-local record of what changed, kept separate from the
// tracker's narrative summary. Known kinds are typed; Notes is the free-form
// fallback.
type StateDelta struct {
	LocationChange string            `json:"location_change,omitempty" jsonschema_description:"New location if the scene moved, else empty"`
	ItemsGained    []string          `json:"items_gained,omitempty" jsonschema_description:"Items the protagonist gained"`
	ItemsLost      []string          `json:"items_lost,omitempty" jsonschema_description:"Items the protagonist lost"`
	StatusChanges  map[string]string `json:"status_changes,omitempty" jsonschema_description:"Character or world status changes keyed by subject"`
	Notes          []string          `json:"notes,omitempty" jsonschema_description:"Free-form changes that fit no other field"`
}

// Audio cue types.
const (
	CueTypeMusic     = "music"
	CueTypeSFX       = "sfx"
	CueTypeNarration = "narration"
)

// AudioCue is a directive for audio that should accompany a scene. Scene
// generation produces them at directive level; the audio directors refine them
// into concrete provider parameters.
type AudioCue struct {
	Type           string    `json:"type" jsonschema:"enum=music,enum=sfx" jsonschema_description:"Cue type"`
	Trigger        string    `json:"trigger" jsonschema_description:"Bracketed token embeddable in narration, e.g. [MUSIC:carousel]"`
	Description    string    `json:"description" jsonschema_description:"Human description of the desired sound"`
	AudioDirection string    `json:"audio_direction" jsonschema_description:"Direction referencing the episode's audio style"`
	TimingOffsetMs int       `json:"timing_offset_ms,omitempty" jsonschema_description:"Offset into the narration in milliseconds"`
	Priority       int       `json:"priority" jsonschema_description:"Higher plays over lower when cues collide"`
	Params         CueParams `json:"params" jsonschema_description:"Provider-specific generation parameters"`
}

// CueParams carries the provider-facing knobs for one cue.
type CueParams struct {
	DurationMs      int     `json:"duration_ms,omitempty" jsonschema_description:"Target duration in milliseconds (music)"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" jsonschema_description:"Target duration in seconds (sfx)"`
	Instrumental    bool    `json:"instrumental,omitempty" jsonschema_description:"Music must be instrumental only"`
	Loop            bool    `json:"loop,omitempty" jsonschema_description:"Whether the asset should loop seamlessly"`
	PromptInfluence float64 `json:"prompt_influence,omitempty" jsonschema_description:"How literally the provider follows the text, 0 to 1"`
	Prompt          string  `json:"prompt,omitempty" jsonschema_description:"Realized provider prompt text"`
}

// SceneDraft is the scene generator's output before persistence. A finale
// draft carries Resolution and empty choices.
type SceneDraft struct {
	Narration  string     `json:"narration"`
	ChoiceA    string     `json:"choice_a,omitempty"`
	ChoiceB    string     `json:"choice_b,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
	Delta      StateDelta `json:"state_update"`
	AudioCues  []AudioCue `json:"audio_cues"`
}

// CallbackSuggestion is the continuity analyzer's advisory output. The scene
// generator may ignore it.
type CallbackSuggestion struct {
	ShouldUseCallback bool   `json:"should_use_callback" jsonschema_description:"Whether the next scene should pay off an anchor"`
	SuggestedAnchorID string `json:"suggested_anchor_id,omitempty" jsonschema_description:"ID of the anchor to resurface, when recommending one"`
	CallbackType      string `json:"callback_type" jsonschema_description:"Kind of callback, e.g. payoff, echo, reversal, none"`
	Reason            string `json:"reason" jsonschema_description:"Why this recommendation"`
	IntegrationHint   string `json:"integration_hint,omitempty" jsonschema_description:"How the scene could weave the callback in"`
}
