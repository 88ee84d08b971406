package topics

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopicDetails is one consistent snapshot of a topic as seen by a user.
type TopicDetails struct {
	Topic         TopicView
	GrantCreated  bool
	Results       Results
	UserChoices   []string
	FavoriteCount int64
	IsFavorite    bool
}

// SubmitVote validates choices and records them as voter's ballot, replacing
// any earlier ballot on the same topic.
func (service *Service) SubmitVote(ctx context.Context, voter Username, code ShareCode, choices []string) (Ballot, error) {
	if err := service.checkReady(opSubmitVote); err != nil {
		return Ballot{}, err
	}

	var stored Ballot
	err := service.retryOnConflict(opSubmitVote, func() error {
		return service.withTopic(ctx, opSubmitVote, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
			fields := []zap.Field{zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, voter.String())}
			allowed, err := hasAccess(tx, *topic, voter)
			if err != nil {
				return service.fail(opSubmitVote, reasonQueryFailed, err, fields...)
			}
			if !allowed {
				return service.fail(opSubmitVote, reasonForbidden,
					fmt.Errorf("%w: resolve the share code before voting", ErrForbidden), fields...)
			}

			ordered, err := resolveBallot(*topic, choices)
			if err != nil {
				return service.fail(opSubmitVote, "invalid_ballot", err, fields...)
			}

			now := service.now()
			ballot := Ballot{
				TopicID:   topic.ID,
				Username:  voter.String(),
				Choices:   datatypes.JSONSlice[string](ordered),
				CastAt:    now,
				UpdatedAt: now,
			}
			upsert := clause.OnConflict{
				Columns:   []clause.Column{{Name: "topic_id"}, {Name: "username"}},
				DoUpdates: clause.AssignmentColumns([]string{"choices", "updated_at"}),
			}
			if err := tx.Clauses(upsert).Create(&ballot).Error; err != nil {
				return service.fail(opSubmitVote, "ballot_upsert_failed", err, fields...)
			}
			if err := tx.Where(queryTopicUser, topic.ID, voter.String()).Take(&stored).Error; err != nil {
				return service.fail(opSubmitVote, reasonQueryFailed, err, fields...)
			}
			return nil
		})
	})
	if errors.Is(err, ErrConflict) {
		return Ballot{}, service.fail(opSubmitVote, reasonConflict, err, zap.String(fieldShareCode, code.String()))
	}
	if err != nil {
		return Ballot{}, err
	}
	return stored, nil
}

// ComputeResults tallies the live ballots of a topic against its answers as of
// the same snapshot.
func (service *Service) ComputeResults(ctx context.Context, code ShareCode) (Results, error) {
	if err := service.checkReady(opComputeResults); err != nil {
		return Results{}, err
	}

	var results Results
	err := service.withTopic(ctx, opComputeResults, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		tallied, err := service.tally(tx, opComputeResults, *topic)
		if err != nil {
			return err
		}
		results = tallied
		return nil
	})
	if err != nil {
		return Results{}, err
	}
	return results, nil
}

// GetUserBallot returns user's ballot on the topic, if any.
func (service *Service) GetUserBallot(ctx context.Context, code ShareCode, user Username) (Ballot, bool, error) {
	if err := service.checkReady(opGetUserBallot); err != nil {
		return Ballot{}, false, err
	}

	var (
		ballot Ballot
		found  bool
	)
	err := service.withTopic(ctx, opGetUserBallot, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		var err error
		ballot, found, err = findBallot(tx, topic.ID, user)
		if err != nil {
			return service.fail(opGetUserBallot, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		return nil
	})
	if err != nil {
		return Ballot{}, false, err
	}
	return ballot, found, nil
}

// ViewTopic resolves the code for user and returns the topic, its results and
// the user's own choices from one snapshot.
func (service *Service) ViewTopic(ctx context.Context, user Username, code ShareCode) (TopicDetails, error) {
	if err := service.checkReady(opViewTopic); err != nil {
		return TopicDetails{}, err
	}

	var details TopicDetails
	err := service.retryOnConflict(opViewTopic, func() error {
		return service.withTopic(ctx, opViewTopic, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
			fields := []zap.Field{zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, user.String())}
			granted, err := service.ensureGrant(tx, opViewTopic, *topic, user)
			if err != nil {
				return err
			}
			tags, err := loadTags(tx, topic.ID)
			if err != nil {
				return service.fail(opViewTopic, reasonQueryFailed, err, fields...)
			}
			results, err := service.tally(tx, opViewTopic, *topic)
			if err != nil {
				return err
			}
			ballot, found, err := findBallot(tx, topic.ID, user)
			if err != nil {
				return service.fail(opViewTopic, reasonQueryFailed, err, fields...)
			}
			favorites, isFavorite, err := favoriteState(tx, topic.ID, user)
			if err != nil {
				return service.fail(opViewTopic, reasonQueryFailed, err, fields...)
			}

			details = TopicDetails{
				Topic:         TopicView{Topic: *topic, Tags: tags},
				GrantCreated:  granted,
				Results:       results,
				UserChoices:   []string{},
				FavoriteCount: favorites,
				IsFavorite:    isFavorite,
			}
			if found {
				details.UserChoices = append(details.UserChoices, ballot.Choices...)
			}
			return nil
		})
	})
	if errors.Is(err, ErrConflict) {
		return TopicDetails{}, service.fail(opViewTopic, reasonConflict, err, zap.String(fieldShareCode, code.String()))
	}
	if err != nil {
		return TopicDetails{}, err
	}
	return details, nil
}

func (service *Service) tally(tx *gorm.DB, operation string, topic Topic) (Results, error) {
	var ballots []Ballot
	if err := tx.Where(queryTopicID, topic.ID).Find(&ballots).Error; err != nil {
		return Results{}, service.fail(operation, reasonQueryFailed, err, zap.String(fieldShareCode, topic.ShareCode))
	}
	return tallyBallots(topic.Answers, ballots), nil
}

func findBallot(tx *gorm.DB, topicID string, user Username) (Ballot, bool, error) {
	var ballot Ballot
	err := tx.Where(queryTopicUser, topicID, user.String()).Take(&ballot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ballot{}, false, nil
	}
	if err != nil {
		return Ballot{}, false, err
	}
	return ballot, true, nil
}
