package topics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

const (
	defaultSearchPage  = 1
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SortOrder selects how search results are ranked.
type SortOrder string

const (
	SortPopular   SortOrder = "popular"
	SortVotes     SortOrder = "votes"
	SortRecent    SortOrder = "recent"
	SortFavorites SortOrder = "favorites"
)

// ParseSortOrder maps a raw sort parameter, defaulting to SortPopular.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch order := SortOrder(strings.ToLower(strings.TrimSpace(raw))); order {
	case "":
		return SortPopular, nil
	case SortPopular, SortVotes, SortRecent, SortFavorites:
		return order, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", ErrValidation, raw)
	}
}

// SearchQuery filters and pages the topics visible to a user.
type SearchQuery struct {
	Title string
	Tags  []string
	Sort  SortOrder
	Page  int
	Limit int
}

func (query SearchQuery) normalize() (SearchQuery, error) {
	normalized := query
	normalized.Title = strings.ToLower(strings.TrimSpace(query.Title))
	normalized.Tags = NormalizeTags(query.Tags)
	order, err := ParseSortOrder(string(query.Sort))
	if err != nil {
		return SearchQuery{}, err
	}
	normalized.Sort = order
	if normalized.Page == 0 {
		normalized.Page = defaultSearchPage
	}
	if normalized.Page < 1 {
		return SearchQuery{}, fmt.Errorf("%w: page must be at least 1", ErrValidation)
	}
	if normalized.Limit == 0 {
		normalized.Limit = defaultSearchLimit
	}
	if normalized.Limit < 1 || normalized.Limit > maxSearchLimit {
		return SearchQuery{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, maxSearchLimit)
	}
	return normalized, nil
}

// TopicSummary is the list rendering of a topic.
type TopicSummary struct {
	ShareCode     string
	Title         string
	Description   string
	IsPublic      bool
	CreatedBy     string
	CreatedAt     time.Time
	AnswerCount   int
	VoteCount     int64
	FavoriteCount int64
	IsFavorite    bool
	Tags          []string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Topics  []TopicSummary
	Total   int64
	Page    int
	Limit   int
	HasNext bool
	HasPrev bool
}

// SearchTopics lists the topics user can see: public ones, their own, and
// private ones they hold a grant for.
func (service *Service) SearchTopics(ctx context.Context, user Username, query SearchQuery) (SearchPage, error) {
	if err := service.checkReady(opSearchTopics); err != nil {
		return SearchPage{}, err
	}
	normalized, err := query.normalize()
	if err != nil {
		return SearchPage{}, service.fail(opSearchTopics, reasonInvalidInput, err, zap.String(fieldUsername, user.String()))
	}

	page := SearchPage{Page: normalized.Page, Limit: normalized.Limit, Topics: []TopicSummary{}}
	err = service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted := tx.Model(&AccessGrant{}).Select("topic_id").Where("username = ?", user.String())
		filtered := tx.Model(&Topic{}).
			Where("topics.is_public = ? OR topics.created_by = ? OR topics.id IN (?)", true, user.String(), granted)
		if normalized.Title != "" {
			pattern := "%" + likeEscaper.Replace(normalized.Title) + "%"
			filtered = filtered.Where(`LOWER(topics.title) LIKE ? ESCAPE '\' OR LOWER(topics.share_code) LIKE ? ESCAPE '\'`, pattern, pattern)
		}
		if len(normalized.Tags) > 0 {
			tagged := tx.Model(&TopicTag{}).Select("topic_id").Where("tag IN ?", normalized.Tags)
			filtered = filtered.Where("topics.id IN (?)", tagged)
		}
		filtered = filtered.Session(&gorm.Session{})

		if err := filtered.Count(&page.Total).Error; err != nil {
			return err
		}

		var found []Topic
		if err := orderBy(filtered, normalized.Sort).
			Offset((normalized.Page - 1) * normalized.Limit).
			Limit(normalized.Limit).
			Find(&found).Error; err != nil {
			return err
		}
		summaries, err := summarize(tx, user, found)
		if err != nil {
			return err
		}
		page.Topics = summaries
		return nil
	})
	if err != nil {
		return SearchPage{}, service.fail(opSearchTopics, reasonQueryFailed, err, zap.String(fieldUsername, user.String()))
	}

	page.HasPrev = page.Page > 1
	page.HasNext = int64(page.Page*page.Limit) < page.Total
	return page, nil
}

func orderBy(query *gorm.DB, order SortOrder) *gorm.DB {
	switch order {
	case SortRecent:
		return query.Order("topics.created_at DESC").Order("topics.id DESC")
	case SortFavorites:
		return query.
			Order("(SELECT COUNT(*) FROM favorites WHERE favorites.topic_id = topics.id) DESC").
			Order("topics.created_at DESC").
			Order("topics.id DESC")
	default:
		return query.
			Order("(SELECT COUNT(*) FROM ballots WHERE ballots.topic_id = topics.id) DESC").
			Order("topics.created_at DESC").
			Order("topics.id DESC")
	}
}

type topicCount struct {
	TopicID string
	Total   int64
}

// summarize attaches counts, tags and the user's favorite flag to topics,
// preserving their order.
func summarize(tx *gorm.DB, user Username, topics []Topic) ([]TopicSummary, error) {
	summaries := make([]TopicSummary, 0, len(topics))
	if len(topics) == 0 {
		return summaries, nil
	}
	ids := make([]string, 0, len(topics))
	for _, topic := range topics {
		ids = append(ids, topic.ID)
	}

	votes, err := countByTopic(tx, &Ballot{}, ids)
	if err != nil {
		return nil, err
	}
	favorites, err := countByTopic(tx, &Favorite{}, ids)
	if err != nil {
		return nil, err
	}

	var mine []Favorite
	if err := tx.Where("topic_id IN ? AND username = ?", ids, user.String()).Find(&mine).Error; err != nil {
		return nil, err
	}
	favoriteSet := make(map[string]struct{}, len(mine))
	for _, favorite := range mine {
		favoriteSet[favorite.TopicID] = struct{}{}
	}

	var tagRows []TopicTag
	if err := tx.Where("topic_id IN ?", ids).Order("position ASC").Find(&tagRows).Error; err != nil {
		return nil, err
	}
	tags := make(map[string][]string, len(topics))
	for _, row := range tagRows {
		tags[row.TopicID] = append(tags[row.TopicID], row.Tag)
	}

	for _, topic := range topics {
		_, isFavorite := favoriteSet[topic.ID]
		topicTags := tags[topic.ID]
		if topicTags == nil {
			topicTags = []string{}
		}
		summaries = append(summaries, TopicSummary{
			ShareCode:     topic.ShareCode,
			Title:         topic.Title,
			Description:   topic.Description,
			IsPublic:      topic.IsPublic,
			CreatedBy:     topic.CreatedBy,
			CreatedAt:     topic.CreatedAt,
			AnswerCount:   len(topic.Answers),
			VoteCount:     votes[topic.ID],
			FavoriteCount: favorites[topic.ID],
			IsFavorite:    isFavorite,
			Tags:          topicTags,
		})
	}
	return summaries, nil
}

func countByTopic(tx *gorm.DB, model any, ids []string) (map[string]int64, error) {
	var rows []topicCount
	if err := tx.Model(model).
		Select("topic_id, COUNT(*) AS total").
		Where("topic_id IN ?", ids).
		Group("topic_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TopicID] = row.Total
	}
	return counts, nil
}
