package topics

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateTopic persists a new topic owned by owner and returns it with a fresh
// share code. The creator's favorite is recorded in the same transaction.
func (service *Service) CreateTopic(ctx context.Context, owner Username, input CreateTopicInput) (TopicView, error) {
	if err := service.checkReady(opCreateTopic); err != nil {
		return TopicView{}, err
	}
	if service.shareCodes == nil {
		return TopicView{}, service.fail(opCreateTopic, "missing_share_codes", errMissingCodeSource)
	}

	normalized := input.Normalize()
	if err := normalized.Validate(); err != nil {
		return TopicView{}, service.fail(opCreateTopic, reasonInvalidInput, err, zap.String(fieldUsername, owner.String()))
	}

	topicID, err := service.idProvider.NewID()
	if err != nil {
		return TopicView{}, service.fail(opCreateTopic, "id_generation_failed", err)
	}

	var created Topic
	err = service.retryOnConflict(opCreateTopic, func() error {
		code, codeErr := service.shareCodes.NewShareCode()
		if codeErr != nil {
			return codeErr
		}
		now := service.now()
		topic := Topic{
			ID:               topicID,
			ShareCode:        code.String(),
			Title:            normalized.Title,
			Description:      normalized.Description,
			Answers:          append([]string(nil), normalized.Answers...),
			IsPublic:         normalized.IsPublic,
			IsEditable:       normalized.IsEditable,
			AllowMultiSelect: normalized.AllowMultiSelect,
			CreatedBy:        owner.String(),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&topic).Error; err != nil {
				return err
			}
			if err := replaceTags(tx, topic.ID, normalized.Tags); err != nil {
				return err
			}
			favorite := Favorite{TopicID: topic.ID, Username: owner.String(), CreatedAt: now}
			if err := tx.Create(&favorite).Error; err != nil {
				return err
			}
			created = topic
			return nil
		})
	})
	if errors.Is(err, ErrConflict) {
		return TopicView{}, service.fail(opCreateTopic, reasonConflict, err, zap.String(fieldUsername, owner.String()))
	}
	if err != nil {
		return TopicView{}, service.fail(opCreateTopic, "topic_insert_failed", err, zap.String(fieldUsername, owner.String()))
	}

	service.loggerOrDefault().Info("topic created",
		zap.String(fieldTopicID, created.ID),
		zap.String(fieldShareCode, created.ShareCode),
		zap.String(fieldUsername, owner.String()))
	return TopicView{Topic: created, Tags: normalized.Tags}, nil
}

// AppendAnswer adds a new option to an editable topic. The option becomes
// votable and visible in results atomically.
func (service *Service) AppendAnswer(ctx context.Context, requester Username, code ShareCode, rawOption string) (TopicView, error) {
	if err := service.checkReady(opAppendAnswer); err != nil {
		return TopicView{}, err
	}
	option, err := normalizeOption(rawOption)
	if err != nil {
		return TopicView{}, service.fail(opAppendAnswer, reasonInvalidInput, err, zap.String(fieldShareCode, code.String()))
	}

	var view TopicView
	err = service.withTopic(ctx, opAppendAnswer, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		if !topic.IsEditable {
			return service.fail(opAppendAnswer, reasonForbidden,
				fmt.Errorf("%w: topic does not accept new answers", ErrForbidden),
				zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, requester.String()))
		}
		allowed, err := hasAccess(tx, *topic, requester)
		if err != nil {
			return service.fail(opAppendAnswer, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		if !allowed {
			return service.fail(opAppendAnswer, reasonForbidden,
				fmt.Errorf("%w: no access to this topic", ErrForbidden),
				zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, requester.String()))
		}
		if topic.HasAnswer(option) {
			return service.fail(opAppendAnswer, "duplicate_answer",
				fmt.Errorf("%w: %q", ErrDuplicateAnswer, option),
				zap.String(fieldShareCode, code.String()))
		}
		if len(topic.Answers) >= maxAnswers {
			return service.fail(opAppendAnswer, reasonInvalidInput,
				fmt.Errorf("%w: topic already has %d answers", ErrValidation, maxAnswers),
				zap.String(fieldShareCode, code.String()))
		}

		answers := append(append([]string(nil), topic.Answers...), option)
		now := service.now()
		if err := tx.Model(&Topic{}).Where("id = ?", topic.ID).Updates(map[string]any{
			"answers":    datatypes.JSONSlice[string](answers),
			"updated_at": now,
		}).Error; err != nil {
			return service.fail(opAppendAnswer, "topic_update_failed", err, zap.String(fieldShareCode, code.String()))
		}
		topic.Answers = answers
		topic.UpdatedAt = now

		tags, err := loadTags(tx, topic.ID)
		if err != nil {
			return service.fail(opAppendAnswer, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		view = TopicView{Topic: *topic, Tags: tags}
		return nil
	})
	if err != nil {
		return TopicView{}, err
	}
	return view, nil
}

// UpdateDescription replaces the description. Only the creator may do this.
func (service *Service) UpdateDescription(ctx context.Context, requester Username, code ShareCode, rawDescription string) (TopicView, error) {
	if err := service.checkReady(opUpdateDescription); err != nil {
		return TopicView{}, err
	}
	description, err := normalizeDescription(rawDescription)
	if err != nil {
		return TopicView{}, service.fail(opUpdateDescription, reasonInvalidInput, err, zap.String(fieldShareCode, code.String()))
	}

	var view TopicView
	err = service.withTopic(ctx, opUpdateDescription, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		if err := service.requireCreator(opUpdateDescription, *topic, requester); err != nil {
			return err
		}
		now := service.now()
		if err := tx.Model(&Topic{}).Where("id = ?", topic.ID).Updates(map[string]any{
			"description": description,
			"updated_at":  now,
		}).Error; err != nil {
			return service.fail(opUpdateDescription, "topic_update_failed", err, zap.String(fieldShareCode, code.String()))
		}
		topic.Description = description
		topic.UpdatedAt = now

		tags, err := loadTags(tx, topic.ID)
		if err != nil {
			return service.fail(opUpdateDescription, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		view = TopicView{Topic: *topic, Tags: tags}
		return nil
	})
	if err != nil {
		return TopicView{}, err
	}
	return view, nil
}

// UpdateTags replaces the tag set. Only the creator may do this.
func (service *Service) UpdateTags(ctx context.Context, requester Username, code ShareCode, rawTags []string) (TopicView, error) {
	if err := service.checkReady(opUpdateTags); err != nil {
		return TopicView{}, err
	}
	tags := NormalizeTags(rawTags)
	if err := validateTags(tags); err != nil {
		return TopicView{}, service.fail(opUpdateTags, reasonInvalidInput, err, zap.String(fieldShareCode, code.String()))
	}

	var view TopicView
	err := service.withTopic(ctx, opUpdateTags, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		if err := service.requireCreator(opUpdateTags, *topic, requester); err != nil {
			return err
		}
		if err := replaceTags(tx, topic.ID, tags); err != nil {
			return service.fail(opUpdateTags, "tag_update_failed", err, zap.String(fieldShareCode, code.String()))
		}
		now := service.now()
		if err := tx.Model(&Topic{}).Where("id = ?", topic.ID).Update("updated_at", now).Error; err != nil {
			return service.fail(opUpdateTags, "topic_update_failed", err, zap.String(fieldShareCode, code.String()))
		}
		topic.UpdatedAt = now
		view = TopicView{Topic: *topic, Tags: tags}
		return nil
	})
	if err != nil {
		return TopicView{}, err
	}
	return view, nil
}

// DeleteTopic removes a topic together with its ballots, grants, favorites and
// tags. The tombstoned row keeps its share code reserved.
func (service *Service) DeleteTopic(ctx context.Context, requester Username, code ShareCode) (DeletionSummary, error) {
	if err := service.checkReady(opDeleteTopic); err != nil {
		return DeletionSummary{}, err
	}

	var summary DeletionSummary
	err := service.withTopic(ctx, opDeleteTopic, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		if err := service.requireCreator(opDeleteTopic, *topic, requester); err != nil {
			return err
		}

		ballots := tx.Where(queryTopicID, topic.ID).Delete(&Ballot{})
		if ballots.Error != nil {
			return service.fail(opDeleteTopic, "ballot_delete_failed", ballots.Error, zap.String(fieldShareCode, code.String()))
		}
		grants := tx.Where(queryTopicID, topic.ID).Delete(&AccessGrant{})
		if grants.Error != nil {
			return service.fail(opDeleteTopic, "grant_delete_failed", grants.Error, zap.String(fieldShareCode, code.String()))
		}
		favorites := tx.Where(queryTopicID, topic.ID).Delete(&Favorite{})
		if favorites.Error != nil {
			return service.fail(opDeleteTopic, "favorite_delete_failed", favorites.Error, zap.String(fieldShareCode, code.String()))
		}
		if err := tx.Where(queryTopicID, topic.ID).Delete(&TopicTag{}).Error; err != nil {
			return service.fail(opDeleteTopic, "tag_delete_failed", err, zap.String(fieldShareCode, code.String()))
		}
		if err := tx.Where("id = ?", topic.ID).Delete(&Topic{}).Error; err != nil {
			return service.fail(opDeleteTopic, "topic_delete_failed", err, zap.String(fieldShareCode, code.String()))
		}

		summary = DeletionSummary{
			BallotsRemoved:   ballots.RowsAffected,
			GrantsRemoved:    grants.RowsAffected,
			FavoritesRemoved: favorites.RowsAffected,
		}
		return nil
	})
	if err != nil {
		return DeletionSummary{}, err
	}

	service.loggerOrDefault().Info("topic deleted",
		zap.String(fieldShareCode, code.String()),
		zap.String(fieldUsername, requester.String()),
		zap.Int64("ballots_removed", summary.BallotsRemoved),
		zap.Int64("grants_removed", summary.GrantsRemoved))
	return summary, nil
}

func (service *Service) requireCreator(operation string, topic Topic, requester Username) error {
	if topic.IsCreator(requester) {
		return nil
	}
	return service.fail(operation, reasonForbidden,
		fmt.Errorf("%w: only the creator can do this", ErrForbidden),
		zap.String(fieldShareCode, topic.ShareCode), zap.String(fieldUsername, requester.String()))
}
