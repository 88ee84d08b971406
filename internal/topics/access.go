package topics

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resolve looks a share code up for user. Resolving a private topic as a
// non-creator records a grant; repeated calls are idempotent.
func (service *Service) Resolve(ctx context.Context, user Username, code ShareCode) (ResolveOutcome, error) {
	if err := service.checkReady(opResolve); err != nil {
		return ResolveOutcome{}, err
	}

	var outcome ResolveOutcome
	err := service.retryOnConflict(opResolve, func() error {
		return service.withTopic(ctx, opResolve, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
			granted, err := service.ensureGrant(tx, opResolve, *topic, user)
			if err != nil {
				return err
			}
			tags, err := loadTags(tx, topic.ID)
			if err != nil {
				return service.fail(opResolve, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
			}
			outcome = ResolveOutcome{Topic: TopicView{Topic: *topic, Tags: tags}, GrantCreated: granted}
			return nil
		})
	})
	if errors.Is(err, ErrConflict) {
		return ResolveOutcome{}, service.fail(opResolve, reasonConflict, err, zap.String(fieldShareCode, code.String()))
	}
	if err != nil {
		return ResolveOutcome{}, err
	}
	return outcome, nil
}

// ensureGrant inserts the (topic, user) grant when the topic is private and the
// user is not its creator. It reports whether a new row was written.
func (service *Service) ensureGrant(tx *gorm.DB, operation string, topic Topic, user Username) (bool, error) {
	if topic.IsPublic || topic.IsCreator(user) {
		return false, nil
	}
	grant := AccessGrant{TopicID: topic.ID, Username: user.String(), GrantedAt: service.now()}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
	if result.Error != nil {
		return false, service.fail(operation, "grant_insert_failed", result.Error,
			zap.String(fieldShareCode, topic.ShareCode), zap.String(fieldUsername, user.String()))
	}
	if result.RowsAffected > 0 {
		service.loggerOrDefault().Debug("access granted",
			zap.String(fieldShareCode, topic.ShareCode),
			zap.String(fieldUsername, user.String()))
	}
	return result.RowsAffected > 0, nil
}

// RevokeAccess removes target's grant on a private topic together with any
// ballot target has cast there. The creator may revoke anyone but themselves;
// any other user may only revoke their own access.
func (service *Service) RevokeAccess(ctx context.Context, requester Username, code ShareCode, target Username) (RevokeSummary, error) {
	if err := service.checkReady(opRevokeAccess); err != nil {
		return RevokeSummary{}, err
	}

	var summary RevokeSummary
	err := service.withTopic(ctx, opRevokeAccess, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		fields := []zap.Field{zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, requester.String())}
		if topic.IsPublic {
			return service.fail(opRevokeAccess, reasonInvalidInput,
				fmt.Errorf("%w: public topics have no access list", ErrValidation), fields...)
		}
		if !topic.IsCreator(requester) && requester != target {
			return service.fail(opRevokeAccess, reasonForbidden,
				fmt.Errorf("%w: only the creator can revoke other users", ErrForbidden), fields...)
		}
		if topic.IsCreator(target) {
			return service.fail(opRevokeAccess, reasonInvalidInput,
				fmt.Errorf("%w: the creator's access cannot be revoked", ErrValidation), fields...)
		}

		grants := tx.Where(queryTopicUser, topic.ID, target.String()).Delete(&AccessGrant{})
		if grants.Error != nil {
			return service.fail(opRevokeAccess, "grant_delete_failed", grants.Error, fields...)
		}
		ballots := tx.Where(queryTopicUser, topic.ID, target.String()).Delete(&Ballot{})
		if ballots.Error != nil {
			return service.fail(opRevokeAccess, "ballot_delete_failed", ballots.Error, fields...)
		}
		summary = RevokeSummary{
			GrantRemoved:  grants.RowsAffected > 0,
			BallotRemoved: ballots.RowsAffected > 0,
		}
		return nil
	})
	if err != nil {
		return RevokeSummary{}, err
	}

	service.loggerOrDefault().Info("access revoked",
		zap.String(fieldShareCode, code.String()),
		zap.String("target", target.String()),
		zap.Bool("grant_removed", summary.GrantRemoved),
		zap.Bool("ballot_removed", summary.BallotRemoved))
	return summary, nil
}

// RemoveUsers revokes several users from a private topic at once. Only the
// creator may call it. Each target loses its grant and its ballot; targets
// without a grant are skipped for RemovedUsers but still have ballots cleared.
func (service *Service) RemoveUsers(ctx context.Context, requester Username, code ShareCode, targets []Username) (RemovalSummary, error) {
	if err := service.checkReady(opRemoveUsers); err != nil {
		return RemovalSummary{}, err
	}

	summary := RemovalSummary{RemovedUsers: []string{}}
	err := service.withTopic(ctx, opRemoveUsers, code, lockExclusive, func(tx *gorm.DB, topic *Topic) error {
		fields := []zap.Field{zap.String(fieldShareCode, code.String()), zap.String(fieldUsername, requester.String())}
		if err := service.requireCreator(opRemoveUsers, *topic, requester); err != nil {
			return err
		}
		if topic.IsPublic {
			return service.fail(opRemoveUsers, reasonInvalidInput,
				fmt.Errorf("%w: public topics have no access list", ErrValidation), fields...)
		}

		seen := make(map[Username]struct{}, len(targets))
		for _, target := range targets {
			if _, duplicate := seen[target]; duplicate {
				continue
			}
			seen[target] = struct{}{}
			if topic.IsCreator(target) {
				return service.fail(opRemoveUsers, reasonInvalidInput,
					fmt.Errorf("%w: the creator's access cannot be revoked", ErrValidation), fields...)
			}

			grants := tx.Where(queryTopicUser, topic.ID, target.String()).Delete(&AccessGrant{})
			if grants.Error != nil {
				return service.fail(opRemoveUsers, "grant_delete_failed", grants.Error, fields...)
			}
			ballots := tx.Where(queryTopicUser, topic.ID, target.String()).Delete(&Ballot{})
			if ballots.Error != nil {
				return service.fail(opRemoveUsers, "ballot_delete_failed", ballots.Error, fields...)
			}
			if grants.RowsAffected > 0 {
				summary.RemovedUsers = append(summary.RemovedUsers, target.String())
			}
			summary.VotesRemoved += ballots.RowsAffected
		}
		return nil
	})
	if err != nil {
		return RemovalSummary{}, err
	}

	service.loggerOrDefault().Info("users removed",
		zap.String(fieldShareCode, code.String()),
		zap.Strings("removed", summary.RemovedUsers),
		zap.Int64("votes_removed", summary.VotesRemoved))
	return summary, nil
}

// ListParticipants returns every user holding a grant on a private topic, in
// grant order, with their current choices. Only the creator may list them.
func (service *Service) ListParticipants(ctx context.Context, requester Username, code ShareCode) ([]Participant, error) {
	if err := service.checkReady(opListParticipants); err != nil {
		return nil, err
	}

	var participants []Participant
	err := service.withTopic(ctx, opListParticipants, code, lockShared, func(tx *gorm.DB, topic *Topic) error {
		if err := service.requireCreator(opListParticipants, *topic, requester); err != nil {
			return err
		}
		if topic.IsPublic {
			return service.fail(opListParticipants, reasonInvalidInput,
				fmt.Errorf("%w: public topics have no access list", ErrValidation),
				zap.String(fieldShareCode, code.String()))
		}

		var grants []AccessGrant
		if err := tx.Where(queryTopicID, topic.ID).Order("granted_at ASC").Order("username ASC").Find(&grants).Error; err != nil {
			return service.fail(opListParticipants, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		var ballots []Ballot
		if err := tx.Where(queryTopicID, topic.ID).Find(&ballots).Error; err != nil {
			return service.fail(opListParticipants, reasonQueryFailed, err, zap.String(fieldShareCode, code.String()))
		}
		choicesByUser := make(map[string][]string, len(ballots))
		for _, ballot := range ballots {
			choicesByUser[ballot.Username] = append([]string(nil), ballot.Choices...)
		}

		participants = make([]Participant, 0, len(grants))
		for _, grant := range grants {
			participants = append(participants, Participant{
				Username:  grant.Username,
				GrantedAt: grant.GrantedAt,
				Choices:   choicesByUser[grant.Username],
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participants, nil
}
