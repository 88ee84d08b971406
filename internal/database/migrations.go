package database

import (
	"errors"
	"time"

	"github.com/PedroFlores1996/democrasite/internal/topics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeTopicTags     = "2025-01-15_normalize_topic_tags"
	migrationPurgeOrphanedTopicRows = "2025-03-02_purge_orphaned_topic_rows"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeTopicTags, apply: normalizeTopicTags},
		{name: migrationPurgeOrphanedTopicRows, apply: purgeOrphanedTopicRows},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeTopicTags rewrites tag sets stored before tags were upper-cased on write.
func normalizeTopicTags(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var affected []string
		if err := tx.Model(&topics.TopicTag{}).
			Where("tag <> UPPER(TRIM(tag))").
			Distinct("topic_id").
			Pluck("topic_id", &affected).Error; err != nil {
			return err
		}

		for _, topicID := range affected {
			var rows []topics.TopicTag
			if err := tx.Where("topic_id = ?", topicID).Order("position ASC").Find(&rows).Error; err != nil {
				return err
			}
			raw := make([]string, 0, len(rows))
			for _, row := range rows {
				raw = append(raw, row.Tag)
			}
			if err := tx.Where("topic_id = ?", topicID).Delete(&topics.TopicTag{}).Error; err != nil {
				return err
			}
			normalized := topics.NormalizeTags(raw)
			if len(normalized) == 0 {
				continue
			}
			replacement := make([]topics.TopicTag, 0, len(normalized))
			for position, tag := range normalized {
				replacement = append(replacement, topics.TopicTag{TopicID: topicID, Tag: tag, Position: position})
			}
			if err := tx.Create(&replacement).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// purgeOrphanedTopicRows drops ballots, grants, favorites and tags whose topic
// is gone or tombstoned.
func purgeOrphanedTopicRows(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		live := tx.Model(&topics.Topic{}).Select("id")
		for _, model := range []any{&topics.Ballot{}, &topics.AccessGrant{}, &topics.Favorite{}, &topics.TopicTag{}} {
			if err := tx.Where("topic_id NOT IN (?)", live).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
