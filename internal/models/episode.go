package models

import (
	"time"

	"gorm.io/gorm"
)

// Episode lifecycle statuses.
const (
	EpisodeStatusActive    = "active"
	EpisodeStatusCompleted = "completed"
	EpisodeStatusAbandoned = "abandoned"
)

// Episode represents one interactive audio-story session owned by an account.
type Episode struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID    string         `gorm:"index;size:36" json:"account_id"`
	UserID       string         `gorm:"size:36" json:"user_id"`
	Title        string         `gorm:"size:255" json:"title"`
	Premise      string         `gorm:"type:text" json:"premise"`
	Status       string         `gorm:"size:32;index" json:"status"` // "active", "completed", "abandoned"
	TotalScenes  int            `json:"total_scenes"`
	TotalChoices int            `json:"total_choices"`
	StateJSON    string         `gorm:"type:text" json:"-"` // Serialized current StateCard
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// WorldBibleRecord persists the one-per-episode creative specification.
// The uniqueIndex on EpisodeID is what backs the single-bible guarantee.
type WorldBibleRecord struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	EpisodeID    string    `gorm:"uniqueIndex;size:36" json:"episode_id"`
	DocumentJSON string    `gorm:"type:text" json:"-"` // Serialized WorldBible document
	CreatedAt    time.Time `json:"created_at"`
}

// Choice options for a scene.
const (
	ChoiceA = "A"
	ChoiceB = "B"
)

// SceneRecord represents one persisted story beat. SceneNumber is unique per
// episode and immutable once assigned; ChosenOption is set in place when the
// listener resolves the choice.
type SceneRecord struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	EpisodeID    string    `gorm:"index:idx_episode_scene,unique;size:36" json:"episode_id"`
	SceneNumber  int       `gorm:"index:idx_episode_scene,unique" json:"scene_number"`
	Narration    string    `gorm:"type:text" json:"narration"`
	ChoiceA      string    `gorm:"type:text" json:"choice_a"`
	ChoiceB      string    `gorm:"type:text" json:"choice_b"`
	ChosenOption string    `gorm:"size:1" json:"chosen_option"` // "", "A" or "B"
	Resolution   string    `gorm:"type:text" json:"resolution,omitempty"`
	IsFinale     bool      `json:"is_finale"`
	DeltaJSON    string    `gorm:"type:text" json:"-"` // Serialized StateDelta
	CuesJSON     string    `gorm:"type:text" json:"-"` // Serialized []AudioCue
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Audio generation statuses for EpisodeAudio rows.
const (
	AudioStatusPending    = "pending"
	AudioStatusGenerating = "generating"
	AudioStatusReady      = "ready"
	AudioStatusFailed     = "failed"
)

// EpisodeAudio tracks one synthesized asset (music track, sound effect or
// spoken narration) from directive to stored file. Audio is decorative: a
// failed row never blocks scene progression.
type EpisodeAudio struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	EpisodeID   string    `gorm:"index;size:36" json:"episode_id"`
	SceneID     string    `gorm:"index;size:36" json:"scene_id,omitempty"`
	CueType     string    `gorm:"size:16" json:"cue_type"` // "music", "sfx" or "narration"
	Trigger     string    `gorm:"size:128" json:"trigger"`
	Description string    `gorm:"type:text" json:"description"`
	Status      string    `gorm:"size:16;index" json:"status"` // "pending", "generating", "ready", "failed"
	AssetPath   string    `gorm:"size:512" json:"asset_path,omitempty"`
	DurationMs  int       `json:"duration_ms,omitempty"`
	ParamsJSON  string    `gorm:"type:text" json:"-"` // Serialized CueParams
	LastError   string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
