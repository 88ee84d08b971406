package topics

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shareCodes(summaries []TopicSummary) []string {
	codes := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		codes = append(codes, summary.ShareCode)
	}
	return codes
}

func TestSearchTopicsVisibility(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUsername(t, "alice")
	bob := mustUsername(t, "bob")

	public := mustCreateTopic(t, service, alice, publicPoll("Public", "A", "B"))
	hidden := mustCreateTopic(t, service, alice, privatePoll("Hidden", "A", "B"))
	shared := mustCreateTopic(t, service, alice, privatePoll("Shared", "A", "B"))
	own := mustCreateTopic(t, service, bob, privatePoll("Own", "A", "B"))

	_, err := service.Resolve(ctx, bob, codeOf(shared))
	require.NoError(t, err)

	page, err := service.SearchTopics(ctx, bob, SearchQuery{Sort: SortRecent})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, []string{own.ShareCode, shared.ShareCode, public.ShareCode}, shareCodes(page.Topics))
	assert.NotContains(t, shareCodes(page.Topics), hidden.ShareCode)
}

func TestSearchTopicsFilters(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUsername(t, "alice")

	lunch := mustCreateTopic(t, service, alice, CreateTopicInput{
		Title: "Team Lunch", Answers: []string{"A", "B"}, Tags: []string{"food"}, IsPublic: true,
	})
	dinner := mustCreateTopic(t, service, alice, CreateTopicInput{
		Title: "Dinner plans", Answers: []string{"A", "B"}, Tags: []string{"food", "evening"}, IsPublic: true,
	})
	mustCreateTopic(t, service, alice, CreateTopicInput{
		Title: "Standup time", Answers: []string{"A", "B"}, Tags: []string{"work"}, IsPublic: true,
	})

	byTitle, err := service.SearchTopics(ctx, alice, SearchQuery{Title: "LUNCH"})
	require.NoError(t, err)
	assert.Equal(t, []string{lunch.ShareCode}, shareCodes(byTitle.Topics))

	byCode, err := service.SearchTopics(ctx, alice, SearchQuery{Title: strings.ToLower(dinner.ShareCode)})
	require.NoError(t, err)
	assert.Equal(t, []string{dinner.ShareCode}, shareCodes(byCode.Topics))

	byTag, err := service.SearchTopics(ctx, alice, SearchQuery{Tags: []string{"Food"}, Sort: SortRecent})
	require.NoError(t, err)
	assert.Equal(t, []string{dinner.ShareCode, lunch.ShareCode}, shareCodes(byTag.Topics))
	assert.Equal(t, []string{"FOOD", "EVENING"}, byTag.Topics[0].Tags)
}

func TestSearchTopicsTreatsWildcardsLiterally(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUsername(t, "alice")

	mustCreateTopic(t, service, alice, publicPoll("Budget review", "A", "B"))
	mustCreateTopic(t, service, alice, publicPoll("Retro notes", "A", "B"))
	discount := mustCreateTopic(t, service, alice, publicPoll("50% off_sale", "A", "B"))
	path := mustCreateTopic(t, service, alice, publicPoll(`C:\temp`, "A", "B"))

	for _, title := range []string{"%", "_", `\`} {
		page, err := service.SearchTopics(ctx, alice, SearchQuery{Title: title, Sort: SortRecent})
		require.NoError(t, err, title)
		switch title {
		case "%", "_":
			assert.Equal(t, []string{discount.ShareCode}, shareCodes(page.Topics), title)
		default:
			assert.Equal(t, []string{path.ShareCode}, shareCodes(page.Topics), title)
		}
	}

	page, err := service.SearchTopics(ctx, alice, SearchQuery{Title: "b_dget"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}

func TestSearchTopicsSortsByVotesAndFavorites(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUsername(t, "alice")

	quiet := mustCreateTopic(t, service, alice, publicPoll("Quiet", "A", "B"))
	busy := mustCreateTopic(t, service, alice, publicPoll("Busy", "A", "B"))
	loved := mustCreateTopic(t, service, alice, publicPoll("Loved", "A", "B"))

	for _, name := range []string{"u1", "u2", "u3"} {
		_, err := service.SubmitVote(ctx, mustUsername(t, name), codeOf(busy), []string{"A"})
		require.NoError(t, err)
	}
	_, err := service.SubmitVote(ctx, mustUsername(t, "u1"), codeOf(quiet), []string{"B"})
	require.NoError(t, err)
	for _, name := range []string{"u1", "u2"} {
		require.NoError(t, service.AddFavorite(ctx, mustUsername(t, name), codeOf(loved)))
	}

	popular, err := service.SearchTopics(ctx, alice, SearchQuery{Sort: SortPopular})
	require.NoError(t, err)
	assert.Equal(t, []string{busy.ShareCode, quiet.ShareCode, loved.ShareCode}, shareCodes(popular.Topics))
	assert.Equal(t, int64(3), popular.Topics[0].VoteCount)

	favorites, err := service.SearchTopics(ctx, alice, SearchQuery{Sort: SortFavorites})
	require.NoError(t, err)
	assert.Equal(t, loved.ShareCode, favorites.Topics[0].ShareCode)
	assert.Equal(t, int64(3), favorites.Topics[0].FavoriteCount)
}

func TestSearchTopicsPaging(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUsername(t, "alice")
	for _, title := range []string{"One", "Two", "Three", "Four", "Five"} {
		mustCreateTopic(t, service, alice, publicPoll(title, "A", "B"))
	}

	first, err := service.SearchTopics(ctx, alice, SearchQuery{Sort: SortRecent, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Total)
	assert.Len(t, first.Topics, 2)
	assert.True(t, first.HasNext)
	assert.False(t, first.HasPrev)
	assert.Equal(t, "Five", first.Topics[0].Title)

	last, err := service.SearchTopics(ctx, alice, SearchQuery{Sort: SortRecent, Limit: 2, Page: 3})
	require.NoError(t, err)
	assert.Len(t, last.Topics, 1)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrev)
	assert.Equal(t, "One", last.Topics[0].Title)

	_, err = service.SearchTopics(ctx, alice, SearchQuery{Limit: maxSearchLimit + 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = service.SearchTopics(ctx, alice, SearchQuery{Page: -1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = service.SearchTopics(ctx, alice, SearchQuery{Sort: "loudest"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseSortOrder(t *testing.T) {
	order, err := ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortPopular, order)

	order, err = ParseSortOrder(" Recent ")
	require.NoError(t, err)
	assert.Equal(t, SortRecent, order)

	_, err = ParseSortOrder("random")
	assert.ErrorIs(t, err, ErrValidation)
}
