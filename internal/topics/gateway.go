package topics

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// topicLock selects how a transaction pins the topic row.
//
// Ballot writes and result reads take lockShared so they run side by side but
// never overlap a structural change. Answer appends, description/tag edits,
// revocations and deletions take lockExclusive, so a new option is never
// votable before it is visible in the answers read by a result snapshot.
type topicLock int

const (
	lockShared topicLock = iota
	lockExclusive
)

func (lock topicLock) strength() string {
	if lock == lockExclusive {
		return "UPDATE"
	}
	return "SHARE"
}

// withTopic loads the live topic behind code under the requested lock and runs
// fn inside the same transaction. Errors returned by fn are passed through.
func (service *Service) withTopic(ctx context.Context, operation string, code ShareCode, lock topicLock, fn func(tx *gorm.DB, topic *Topic) error) error {
	return service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var topic Topic
		err := tx.Clauses(clause.Locking{Strength: lock.strength()}).
			Where(queryShareCode, code.String()).
			Take(&topic).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return service.fail(operation, reasonNotFound, fmt.Errorf("%w: invalid share code", ErrNotFound),
				zap.String(fieldShareCode, code.String()))
		}
		if err != nil {
			return service.fail(operation, "topic_select_failed", err, zap.String(fieldShareCode, code.String()))
		}
		return fn(tx, &topic)
	})
}

// retryOnConflict re-runs attempt while it fails on a uniqueness constraint.
// Each attempt must open its own transaction.
func (service *Service) retryOnConflict(operation string, attempt func() error) error {
	var lastErr error
	for try := 1; try <= service.conflictTries; try++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
		service.loggerOrDefault().Debug("retrying after uniqueness conflict",
			zap.String("operation", operation),
			zap.Int("attempt", try),
			zap.Error(err))
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

// hasAccess applies the view/vote rule: public topics and creators always pass,
// everyone else needs a grant.
func hasAccess(tx *gorm.DB, topic Topic, user Username) (bool, error) {
	if topic.IsPublic || topic.IsCreator(user) {
		return true, nil
	}
	var grants int64
	if err := tx.Model(&AccessGrant{}).
		Where(queryTopicUser, topic.ID, user.String()).
		Count(&grants).Error; err != nil {
		return false, err
	}
	return grants > 0, nil
}

func loadTags(tx *gorm.DB, topicID string) ([]string, error) {
	var rows []TopicTag
	if err := tx.Where(queryTopicID, topicID).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, row.Tag)
	}
	return tags, nil
}

func replaceTags(tx *gorm.DB, topicID string, tags []string) error {
	if err := tx.Where(queryTopicID, topicID).Delete(&TopicTag{}).Error; err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	rows := make([]TopicTag, 0, len(tags))
	for position, tag := range tags {
		rows = append(rows, TopicTag{TopicID: topicID, Tag: tag, Position: position})
	}
	return tx.Create(&rows).Error
}
