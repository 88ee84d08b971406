package topics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleFavoriteFlipsState(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	owner := mustUsername(t, "alice")
	fan := mustUsername(t, "bob")
	view := mustCreateTopic(t, service, owner, publicPoll("Q", "A", "B"))

	favorited, err := service.ToggleFavorite(ctx, fan, codeOf(view))
	require.NoError(t, err)
	assert.True(t, favorited)

	count, err := service.CountFavorites(ctx, codeOf(view))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	favorited, err = service.ToggleFavorite(ctx, fan, codeOf(view))
	require.NoError(t, err)
	assert.False(t, favorited)

	count, err = service.CountFavorites(ctx, codeOf(view))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAddAndRemoveFavoriteAreIdempotent(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	owner := mustUsername(t, "alice")
	fan := mustUsername(t, "bob")
	view := mustCreateTopic(t, service, owner, publicPoll("Q", "A", "B"))

	require.NoError(t, service.AddFavorite(ctx, fan, codeOf(view)))
	require.NoError(t, service.AddFavorite(ctx, fan, codeOf(view)))
	count, err := service.CountFavorites(ctx, codeOf(view))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, service.RemoveFavorite(ctx, fan, codeOf(view)))
	require.NoError(t, service.RemoveFavorite(ctx, fan, codeOf(view)))
	count, err = service.CountFavorites(ctx, codeOf(view))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFavoritingPrivateTopicNeedsAccess(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	owner := mustUsername(t, "alice")
	stranger := mustUsername(t, "mallory")
	view := mustCreateTopic(t, service, owner, privatePoll("Q", "A", "B"))

	err := service.AddFavorite(ctx, stranger, codeOf(view))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = service.ToggleFavorite(ctx, stranger, codeOf(view))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = service.Resolve(ctx, stranger, codeOf(view))
	require.NoError(t, err)
	require.NoError(t, service.AddFavorite(ctx, stranger, codeOf(view)))
}

func TestListFavoritesSkipsDeletedTopics(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	owner := mustUsername(t, "alice")
	fan := mustUsername(t, "bob")
	kept := mustCreateTopic(t, service, owner, CreateTopicInput{
		Title:    "Kept",
		Answers:  []string{"A", "B"},
		Tags:     []string{"keep"},
		IsPublic: true,
	})
	dropped := mustCreateTopic(t, service, owner, publicPoll("Dropped", "A", "B"))

	require.NoError(t, service.AddFavorite(ctx, fan, codeOf(kept)))
	require.NoError(t, service.AddFavorite(ctx, fan, codeOf(dropped)))
	_, err := service.SubmitVote(ctx, fan, codeOf(kept), []string{"A"})
	require.NoError(t, err)

	_, err = service.DeleteTopic(ctx, owner, codeOf(dropped))
	require.NoError(t, err)

	favorites, err := service.ListFavorites(ctx, fan)
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, kept.ShareCode, favorites[0].ShareCode)
	assert.True(t, favorites[0].IsFavorite)
	assert.Equal(t, int64(2), favorites[0].FavoriteCount)
	assert.Equal(t, int64(1), favorites[0].VoteCount)
	assert.Equal(t, []string{"KEEP"}, favorites[0].Tags)

	_, err = service.ToggleFavorite(ctx, fan, codeOf(dropped))
	assert.ErrorIs(t, err, ErrNotFound)
}
