package topics

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxUsernameLength    = 190
	maxTitleLength       = 200
	maxAnswerLength      = 200
	maxDescriptionLength = 2000
	maxTagLength         = 50
	maxTags              = 10
	minAnswers           = 2
	maxAnswers           = 1000
)

// Username represents a validated, already-authenticated user identifier.
type Username string

// NewUsername validates raw input and returns a Username.
func NewUsername(rawInput string) (Username, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: username is empty", ErrValidation)
	}
	if len(trimmed) > maxUsernameLength {
		return "", fmt.Errorf("%w: username exceeds %d characters", ErrValidation, maxUsernameLength)
	}
	return Username(trimmed), nil
}

// String returns the underlying username.
func (name Username) String() string {
	return string(name)
}

// Topic is a question plus its ordered answer options.
type Topic struct {
	ID               string                      `gorm:"column:id;primaryKey;size:36;not null"`
	ShareCode        string                      `gorm:"column:share_code;size:8;not null;uniqueIndex:idx_topics_share_code"`
	Title            string                      `gorm:"column:title;size:200;not null;index:idx_topics_title"`
	Description      string                      `gorm:"column:description;type:text;not null;default:''"`
	Answers          datatypes.JSONSlice[string] `gorm:"column:answers;not null"`
	IsPublic         bool                        `gorm:"column:is_public;not null;index:idx_topics_public_created,priority:1"`
	IsEditable       bool                        `gorm:"column:is_editable;not null"`
	AllowMultiSelect bool                        `gorm:"column:allow_multi_select;not null"`
	CreatedBy        string                      `gorm:"column:created_by;size:190;not null;index:idx_topics_created_by"`
	CreatedAt        time.Time                   `gorm:"column:created_at;not null;index:idx_topics_public_created,priority:2"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;not null"`
	DeletedAt        gorm.DeletedAt              `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Topic) TableName() string {
	return "topics"
}

// IsCreator reports whether the user owns the topic.
func (topic Topic) IsCreator(user Username) bool {
	return topic.CreatedBy == user.String()
}

// HasAnswer reports whether the option is present, compared case-sensitively.
func (topic Topic) HasAnswer(option string) bool {
	for _, answer := range topic.Answers {
		if answer == option {
			return true
		}
	}
	return false
}

// TopicTag binds a normalized tag to a topic.
type TopicTag struct {
	TopicID  string `gorm:"column:topic_id;primaryKey;size:36;not null"`
	Tag      string `gorm:"column:tag;primaryKey;size:50;not null;index:idx_topic_tags_tag"`
	Position int    `gorm:"column:position;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (TopicTag) TableName() string {
	return "topic_tags"
}

// AccessGrant records that a user may view and vote on a private topic.
type AccessGrant struct {
	TopicID   string    `gorm:"column:topic_id;primaryKey;size:36;not null"`
	Username  string    `gorm:"column:username;primaryKey;size:190;not null;index:idx_access_grants_username"`
	GrantedAt time.Time `gorm:"column:granted_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AccessGrant) TableName() string {
	return "access_grants"
}

// Ballot is one user's current set of choices on one topic.
type Ballot struct {
	TopicID   string                      `gorm:"column:topic_id;primaryKey;size:36;not null"`
	Username  string                      `gorm:"column:username;primaryKey;size:190;not null;index:idx_ballots_username"`
	Choices   datatypes.JSONSlice[string] `gorm:"column:choices;not null"`
	CastAt    time.Time                   `gorm:"column:cast_at;not null"`
	UpdatedAt time.Time                   `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Ballot) TableName() string {
	return "ballots"
}

// Favorite is a bookmark from a user to a topic.
type Favorite struct {
	TopicID   string    `gorm:"column:topic_id;primaryKey;size:36;not null"`
	Username  string    `gorm:"column:username;primaryKey;size:190;not null;index:idx_favorites_username"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Favorite) TableName() string {
	return "favorites"
}

// Models lists every table owned by the engine, in migration order.
func Models() []any {
	return []any{&Topic{}, &TopicTag{}, &AccessGrant{}, &Ballot{}, &Favorite{}}
}

// TopicView is the topic record returned to callers, with its tags attached.
type TopicView struct {
	Topic
	Tags []string
}

// DeletionSummary reports what a topic deletion cascaded through.
type DeletionSummary struct {
	BallotsRemoved   int64
	GrantsRemoved    int64
	FavoritesRemoved int64
}

// RevokeSummary reports what a revocation removed.
type RevokeSummary struct {
	GrantRemoved  bool
	BallotRemoved bool
}

// RemovalSummary reports a creator's bulk removal from the access list.
type RemovalSummary struct {
	RemovedUsers []string
	VotesRemoved int64
}

// ResolveOutcome is the result of resolving a share code for a user.
type ResolveOutcome struct {
	Topic        TopicView
	GrantCreated bool
}

// Participant is a user holding a grant on a private topic.
type Participant struct {
	Username  string
	GrantedAt time.Time
	Choices   []string
}
