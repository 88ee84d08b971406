package topics

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToggleFavorite flips user's bookmark on the topic and returns the new state.
func (service *Service) ToggleFavorite(ctx context.Context, user Username, code ShareCode) (bool, error) {
	if err := service.checkReady(opToggleFavorite); err != nil {
		return false, err
	}

	var favorited bool
	err := service.withTopic(ctx, opToggleFavorite, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		_, exists, err := favoriteState(tx, topic.ID, user)
		if err != nil {
			return service.fail(opToggleFavorite, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		if exists {
			if err := tx.Where(queryTopicUser, topic.ID, user.String()).Delete(&Favorite{}).Error; err != nil {
				return service.fail(opToggleFavorite, "favorite_delete_failed", err, zap.String(fieldShareCode, code.String()))
			}
			favorited = false
			return nil
		}
		if err := service.insertFavorite(tx, opToggleFavorite, *topic, user); err != nil {
			return err
		}
		favorited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return favorited, nil
}

// AddFavorite bookmarks the topic for user. Adding twice is a no-op.
func (service *Service) AddFavorite(ctx context.Context, user Username, code ShareCode) error {
	if err := service.checkReady(opAddFavorite); err != nil {
		return err
	}
	return service.withTopic(ctx, opAddFavorite, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		return service.insertFavorite(tx, opAddFavorite, *topic, user)
	})
}

// RemoveFavorite drops user's bookmark. Removing a missing bookmark is a no-op.
func (service *Service) RemoveFavorite(ctx context.Context, user Username, code ShareCode) error {
	if err := service.checkReady(opRemoveFavorite); err != nil {
		return err
	}
	return service.withTopic(ctx, opRemoveFavorite, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		if err := tx.Where(queryTopicUser, topic.ID, user.String()).Delete(&Favorite{}).Error; err != nil {
			return service.fail(opRemoveFavorite, "favorite_delete_failed", err, zap.String(fieldShareCode, code.String()))
		}
		return nil
	})
}

// CountFavorites returns how many users bookmarked the topic.
func (service *Service) CountFavorites(ctx context.Context, code ShareCode) (int64, error) {
	if err := service.checkReady(opCountFavorites); err != nil {
		return 0, err
	}

	var count int64
	err := service.withTopic(ctx, opCountFavorites, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		if err := tx.Model(&Favorite{}).Where(queryTopicID, topic.ID).Count(&count).Error; err != nil {
			return service.fail(opCountFavorites, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListFavorites returns the live topics user has bookmarked, most recent first.
func (service *Service) ListFavorites(ctx context.Context, user Username) ([]TopicSummary, error) {
	if err := service.checkReady(opListFavorites); err != nil {
		return nil, err
	}

	var summaries []TopicSummary
	err := service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var favorites []Topic
		if err := tx.Model(&Topic{}).
			Joins("JOIN favorites ON favorites.topic_id = topics.id AND favorites.username = ?", user.String()).
			Order("favorites.created_at DESC").
			Order("topics.id ASC").
			Find(&favorites).Error; err != nil {
			return err
		}
		built, err := summarize(tx, user, favorites)
		if err != nil {
			return err
		}
		summaries = built
		return nil
	})
	if err != nil {
		return nil, service.fail(opListFavorites, reasonQueryFailed, err, zap.String(fieldUsername, user.String()))
	}
	return summaries, nil
}

func (service *Service) insertFavorite(tx *gorm.DB, operation string, topic Topic, user Username) error {
	allowed, err := hasAccess(tx, topic, user)
	if err != nil {
		return service.fail(operation, reasonQueryFailed, err, zap.String(fieldShareCode, topic.ShareCode))
	}
	if !allowed {
		return service.fail(operation, reasonForbidden,
			fmt.Errorf("%w: no access to this topic", ErrForbidden),
			zap.String(fieldShareCode, topic.ShareCode), zap.String(fieldUsername, user.String()))
	}
	favorite := Favorite{TopicID: topic.ID, Username: user.String(), CreatedAt: service.now()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&favorite).Error; err != nil {
		return service.fail(operation, "favorite_insert_failed", err, zap.String(fieldShareCode, topic.ShareCode))
	}
	return nil
}

// favoriteState returns the topic's favorite count and whether user is among them.
func favoriteState(tx *gorm.DB, topicID string, user Username) (int64, bool, error) {
	var count int64
	if err := tx.Model(&Favorite{}).Where(queryTopicID, topicID).Count(&count).Error; err != nil {
		return 0, false, err
	}
	var mine int64
	if err := tx.Model(&Favorite{}).Where(queryTopicUser, topicID, user.String()).Count(&mine).Error; err != nil {
		return 0, false, err
	}
	return count, mine > 0, nil
}
