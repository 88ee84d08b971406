package topics

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var noOpLogger = zap.NewNop()

const (
	opServiceNew         = "topics.service.new"
	opCreateTopic        = "topics.create_topic"
	opAppendAnswer       = "topics.append_answer"
	opUpdateDescription  = "topics.update_description"
	opUpdateTags         = "topics.update_tags"
	opDeleteTopic        = "topics.delete_topic"
	opResolve            = "topics.resolve"
	opRevokeAccess       = "topics.revoke_access"
	opRemoveUsers        = "topics.remove_users"
	opListParticipants   = "topics.list_participants"
	opSubmitVote         = "topics.submit_vote"
	opComputeResults     = "topics.compute_results"
	opGetUserBallot      = "topics.get_user_ballot"
	opViewTopic          = "topics.view_topic"
	opToggleFavorite     = "topics.toggle_favorite"
	opAddFavorite        = "topics.add_favorite"
	opRemoveFavorite     = "topics.remove_favorite"
	opCountFavorites     = "topics.count_favorites"
	opListFavorites      = "topics.list_favorites"
	opSearchTopics       = "topics.search_topics"
	fieldShareCode       = "share_code"
	fieldUsername        = "username"
	fieldTopicID         = "topic_id"
	queryShareCode       = "share_code = ?"
	queryTopicID         = "topic_id = ?"
	queryTopicUser       = "topic_id = ? AND username = ?"
	reasonMissingDB      = "missing_database"
	reasonQueryFailed    = "query_failed"
	reasonNotFound       = "not_found"
	reasonForbidden      = "forbidden"
	reasonInvalidInput   = "invalid_input"
	reasonConflict       = "conflict_retries_exhausted"
	defaultConflictTries = 3
)

// ServiceConfig describes the dependencies of the topic engine.
type ServiceConfig struct {
	Database      *gorm.DB
	Clock         func() time.Time
	IDProvider    IDProvider
	ShareCodes    ShareCodeGenerator
	Logger        *zap.Logger
	ConflictTries int
}

// IDProvider issues opaque internal topic identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service is the topic access and voting engine. It holds no cross-request
// state; every operation runs against the database handle.
type Service struct {
	db            *gorm.DB
	clock         func() time.Time
	idProvider    IDProvider
	shareCodes    ShareCodeGenerator
	logger        *zap.Logger
	conflictTries int
}

// NewService validates dependencies and constructs the engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	shareCodes := cfg.ShareCodes
	if shareCodes == nil {
		shareCodes = NewRandomShareCodeGenerator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	conflictTries := cfg.ConflictTries
	if conflictTries <= 0 {
		conflictTries = defaultConflictTries
	}

	return &Service{
		db:            cfg.Database,
		clock:         clock,
		idProvider:    cfg.IDProvider,
		shareCodes:    shareCodes,
		logger:        logger,
		conflictTries: conflictTries,
	}, nil
}

func (service *Service) now() time.Time {
	return service.clock().UTC()
}

func (service *Service) checkReady(operation string) error {
	if service == nil || service.db == nil {
		service.logError(operation, reasonMissingDB, errMissingDatabase)
		return newServiceError(operation, reasonMissingDB, errMissingDatabase)
	}
	return nil
}

// fail logs and wraps an error. Taxonomy errors are caller mistakes and are
// logged at debug; everything else is a storage failure.
func (service *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	if isDomainError(err) {
		service.logRejection(operation, reason, err, fields...)
	} else {
		service.logError(operation, reason, err, fields...)
	}
	return newServiceError(operation, reason, err)
}

func (service *Service) loggerOrDefault() *zap.Logger {
	if service == nil {
		return noOpLogger
	}
	if service.logger == nil {
		return noOpLogger
	}
	return service.logger
}

func (service *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	service.loggerOrDefault().Error("topics service error", attrs...)
}

func (service *Service) logRejection(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	service.loggerOrDefault().Debug("topics request rejected", attrs...)
}
