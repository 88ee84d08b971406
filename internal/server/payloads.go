package server

import (
	"time"

	"github.com/PedroFlores1996/democrasite/internal/topics"
)

type createTopicRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Answers          []string `json:"answers"`
	IsPublic         *bool    `json:"is_public"`
	IsEditable       bool     `json:"is_editable"`
	AllowMultiSelect bool     `json:"allow_multi_select"`
	Tags             []string `json:"tags"`
}

func (r createTopicRequest) toInput() topics.CreateTopicInput {
	isPublic := true
	if r.IsPublic != nil {
		isPublic = *r.IsPublic
	}
	return topics.CreateTopicInput{
		Title:            r.Title,
		Description:      r.Description,
		Answers:          r.Answers,
		IsPublic:         isPublic,
		IsEditable:       r.IsEditable,
		AllowMultiSelect: r.AllowMultiSelect,
		Tags:             r.Tags,
	}
}

type voteRequest struct {
	Choices []string `json:"choices"`
}

type appendAnswerRequest struct {
	Option string `json:"option"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

// removeUsersRequest accepts a username list; a lone username is also read.
type removeUsersRequest struct {
	Usernames []string `json:"usernames"`
	Username  string   `json:"username"`
}

type topicPayload struct {
	ShareCode        string    `json:"share_code"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Answers          []string  `json:"answers"`
	IsPublic         bool      `json:"is_public"`
	IsEditable       bool      `json:"is_editable"`
	AllowMultiSelect bool      `json:"allow_multi_select"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Tags             []string  `json:"tags"`
}

func newTopicPayload(view topics.TopicView) topicPayload {
	tags := view.Tags
	if tags == nil {
		tags = []string{}
	}
	return topicPayload{
		ShareCode:        view.ShareCode,
		Title:            view.Title,
		Description:      view.Description,
		Answers:          append([]string{}, view.Answers...),
		IsPublic:         view.IsPublic,
		IsEditable:       view.IsEditable,
		AllowMultiSelect: view.AllowMultiSelect,
		CreatedBy:        view.CreatedBy,
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
		Tags:             tags,
	}
}

type answerResultPayload struct {
	Answer     string  `json:"answer"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// topicDetailsPayload is the topic record with its tally and the caller's
// ballot laid out beside it.
type topicDetailsPayload struct {
	topicPayload
	VoteBreakdown   map[string]int        `json:"vote_breakdown"`
	TotalVotes      int                   `json:"total_votes"`
	TotalSelections int                   `json:"total_selections"`
	UserVotes       []string              `json:"user_votes"`
	Results         []answerResultPayload `json:"results"`
	FavoriteCount   int64                 `json:"favorite_count"`
	IsFavorite      bool                  `json:"is_favorite"`
	IsCreator       bool                  `json:"is_creator"`
	GrantCreated    bool                  `json:"grant_created"`
}

func newTopicDetailsPayload(details topics.TopicDetails, user topics.Username) topicDetailsPayload {
	userVotes := details.UserChoices
	if userVotes == nil {
		userVotes = []string{}
	}
	breakdown := make(map[string]int, len(details.Results.Answers))
	results := make([]answerResultPayload, 0, len(details.Results.Answers))
	for _, answer := range details.Results.Answers {
		count := details.Results.PerOptionCounts[answer]
		breakdown[answer] = count
		results = append(results, answerResultPayload{
			Answer:     answer,
			Count:      count,
			Percentage: details.Results.Percentage(answer),
		})
	}
	return topicDetailsPayload{
		topicPayload:    newTopicPayload(details.Topic),
		VoteBreakdown:   breakdown,
		TotalVotes:      details.Results.TotalVotes,
		TotalSelections: details.Results.TotalSelections,
		UserVotes:       userVotes,
		Results:         results,
		FavoriteCount:   details.FavoriteCount,
		IsFavorite:      details.IsFavorite,
		IsCreator:       details.Topic.IsCreator(user),
		GrantCreated:    details.GrantCreated,
	}
}

type topicSummaryPayload struct {
	ShareCode     string    `json:"share_code"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	IsPublic      bool      `json:"is_public"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	AnswerCount   int       `json:"answer_count"`
	VoteCount     int64     `json:"vote_count"`
	FavoriteCount int64     `json:"favorite_count"`
	IsFavorite    bool      `json:"is_favorite"`
	Tags          []string  `json:"tags"`
}

func newTopicSummaryPayloads(summaries []topics.TopicSummary) []topicSummaryPayload {
	payloads := make([]topicSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payloads = append(payloads, topicSummaryPayload{
			ShareCode:     summary.ShareCode,
			Title:         summary.Title,
			Description:   summary.Description,
			IsPublic:      summary.IsPublic,
			CreatedBy:     summary.CreatedBy,
			CreatedAt:     summary.CreatedAt,
			AnswerCount:   summary.AnswerCount,
			VoteCount:     summary.VoteCount,
			FavoriteCount: summary.FavoriteCount,
			IsFavorite:    summary.IsFavorite,
			Tags:          summary.Tags,
		})
	}
	return payloads
}

type searchResponsePayload struct {
	Topics  []topicSummaryPayload `json:"topics"`
	Total   int64                 `json:"total"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	HasNext bool                  `json:"has_next"`
	HasPrev bool                  `json:"has_prev"`
}

type participantPayload struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	GrantedAt   time.Time `json:"granted_at"`
	Choices     []string  `json:"choices"`
}

type deletionPayload struct {
	BallotsRemoved   int64 `json:"ballots_removed"`
	GrantsRemoved    int64 `json:"grants_removed"`
	FavoritesRemoved int64 `json:"favorites_removed"`
}

type removeUsersPayload struct {
	RemovedUsers  []string `json:"removed_users"`
	NotFoundUsers []string `json:"not_found_users"`
	VotesRemoved  int64    `json:"votes_removed"`
}

type favoritePayload struct {
	ShareCode string `json:"share_code"`
	Favorited bool   `json:"favorited"`
}
