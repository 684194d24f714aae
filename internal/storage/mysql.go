package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fablecast/server/internal/config"
	"fablecast/server/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&models.Episode{},
		&models.WorldBibleRecord{},
		&models.SceneRecord{},
		&models.EpisodeAudio{},
	); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreWithDB wraps an existing gorm handle. Used by tests with a
// sqlite-backed or mocked connection.
func NewMySQLStoreWithDB(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// WithTx runs fn in a transaction.
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// CreateEpisodeWithBible persists the episode row, its world bible and the
// first scene atomically. A failed start commits nothing. The unique index on
// WorldBibleRecord.EpisodeID makes a duplicate bible impossible even under a
// racing second start.
func (s *MySQLStore) CreateEpisodeWithBible(episode *models.Episode, bible *models.WorldBible, firstScene *models.SceneRecord) error {
	bibleJSON, err := json.Marshal(bible)
	if err != nil {
		return fmt.Errorf("failed to marshal world bible: %w", err)
	}

	return s.WithTx(func(tx *gorm.DB) error {
		if err := tx.Create(episode).Error; err != nil {
			return err
		}
		rec := &models.WorldBibleRecord{
			ID:           uuid.NewString(),
			EpisodeID:    episode.ID,
			DocumentJSON: string(bibleJSON),
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Create(firstScene).Error
	})
}

func (s *MySQLStore) GetEpisode(id string) (*models.Episode, error) {
	var episode models.Episode
	if err := s.db.First(&episode, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &episode, nil
}

// GetWorldBible loads the episode's bible document. ErrNotFound means no
// bible has been created yet.
func (s *MySQLStore) GetWorldBible(episodeID string) (*models.WorldBible, error) {
	var rec models.WorldBibleRecord
	if err := s.db.First(&rec, "episode_id = ?", episodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var bible models.WorldBible
	if err := json.Unmarshal([]byte(rec.DocumentJSON), &bible); err != nil {
		return nil, fmt.Errorf("failed to unmarshal world bible: %w", err)
	}
	return &bible, nil
}

// SaveEpisodeState writes the episode's status, counters and serialized
// state card.
func (s *MySQLStore) SaveEpisodeState(episode *models.Episode, card *models.StateCard) error {
	stateJSON, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal state card: %w", err)
	}
	episode.StateJSON = string(stateJSON)
	return s.db.Save(episode).Error
}

// LoadStateCard deserializes the episode's current state card.
func (s *MySQLStore) LoadStateCard(episode *models.Episode) (*models.StateCard, error) {
	var card models.StateCard
	if episode.StateJSON == "" {
		return &card, nil
	}
	if err := json.Unmarshal([]byte(episode.StateJSON), &card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state card: %w", err)
	}
	return &card, nil
}

func (s *MySQLStore) CreateScene(scene *models.SceneRecord) error {
	return s.db.Create(scene).Error
}

// ResolveScene records the chosen option on a scene in place.
func (s *MySQLStore) ResolveScene(sceneID, chosenOption string) error {
	return s.db.Model(&models.SceneRecord{}).
		Where("id = ?", sceneID).
		Update("chosen_option", chosenOption).Error
}

func (s *MySQLStore) GetScene(id string) (*models.SceneRecord, error) {
	var scene models.SceneRecord
	if err := s.db.First(&scene, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &scene, nil
}

// ListScenes returns the episode's realized path ordered by scene number.
func (s *MySQLStore) ListScenes(episodeID string) ([]*models.SceneRecord, error) {
	var scenes []*models.SceneRecord
	err := s.db.Where("episode_id = ?", episodeID).
		Order("scene_number asc").
		Find(&scenes).Error
	return scenes, err
}

func (s *MySQLStore) CreateEpisodeAudio(audio *models.EpisodeAudio) error {
	return s.db.Create(audio).Error
}

// UpdateAudioStatus moves an EpisodeAudio row through its lifecycle. Asset
// path and error are written together with the status so a poller never sees
// a ready row without its path.
func (s *MySQLStore) UpdateAudioStatus(id, status, assetPath, errMsg string) error {
	return s.db.Model(&models.EpisodeAudio{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"asset_path": assetPath,
			"last_error": errMsg,
		}).Error
}

func (s *MySQLStore) ListEpisodeAudio(episodeID string) ([]*models.EpisodeAudio, error) {
	var rows []*models.EpisodeAudio
	err := s.db.Where("episode_id = ?", episodeID).
		Order("created_at asc").
		Find(&rows).Error
	return rows, err
}
