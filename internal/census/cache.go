package census

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Place is one cached census place row.
type Place struct {
	State        string `gorm:"primaryKey;size:2"`
	Name         string `gorm:"primaryKey"`
	Population   int
	MedianIncome *int
	PlaceFIPS    string
}

func (Place) TableName() string { return "census_places" }

// stateLoaded marks a state whose places run has been fetched; afterwards
// lookups for that state are cache-only.
type stateLoaded struct {
	State    string `gorm:"primaryKey;size:2"`
	LoadedAt time.Time
}

func (stateLoaded) TableName() string { return "state_loaded" }

// Cache is the on-disk census place store.
type Cache struct {
	db *gorm.DB
}

// OpenCache opens (and migrates) the sqlite cache at path, creating parent
// directories as needed.
func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open census cache: %w", err)
	}
	if err := db.AutoMigrate(&Place{}, &stateLoaded{}); err != nil {
		return nil, fmt.Errorf("migrate census cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// StateLoaded reports whether a state's places are already cached.
func (c *Cache) StateLoaded(ctx context.Context, state string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&stateLoaded{}).
		Where("state = ?", state).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PutState stores a state's places and marks the state loaded, atomically.
func (c *Cache) PutState(ctx context.Context, state string, places []Place) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(places) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&places).Error; err != nil {
				return err
			}
		}
		mark := stateLoaded{State: state, LoadedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mark).Error
	})
}

// Places returns the cached places for a state.
func (c *Cache) Places(ctx context.Context, state string) ([]Place, error) {
	var out []Place
	err := c.db.WithContext(ctx).Where("state = ?", state).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
