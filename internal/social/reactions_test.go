package social

import (
	"testing"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeThenDislikeSwapsReaction(t *testing.T) {
	service, db := newTestService(t, nil)
	seedCatalog(t, db, "cat-1", true)
	comment := mustComment(t, service, commenter, "cat-1", "c", "")

	liked, err := service.ToggleLike(t.Context(), bystander, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, ReactionLiked, liked.State)
	assert.EqualValues(t, 1, liked.Likes)
	assert.Zero(t, liked.Dislikes)

	disliked, err := service.ToggleDislike(t.Context(), bystander, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, ReactionDisliked, disliked.State)
	assert.Zero(t, disliked.Likes)
	assert.EqualValues(t, 1, disliked.Dislikes)
	assert.True(t, disliked.Affected.Contains(domain.Comments("cat-1")))
}

func TestReactionStateMachine(t *testing.T) {
	type step struct {
		like bool
		want ReactionState
	}
	testCases := []struct {
		name  string
		steps []step
	}{
		{name: "like toggles off", steps: []step{{true, ReactionLiked}, {true, ReactionNone}}},
		{name: "dislike toggles off", steps: []step{{false, ReactionDisliked}, {false, ReactionNone}}},
		{name: "dislike then like", steps: []step{{false, ReactionDisliked}, {true, ReactionLiked}}},
		{name: "round trip", steps: []step{{true, ReactionLiked}, {false, ReactionDisliked}, {true, ReactionLiked}, {true, ReactionNone}}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			service, db := newTestService(t, nil)
			seedCatalog(t, db, "cat-1", true)
			comment := mustComment(t, service, commenter, "cat-1", "c", "")

			for index, current := range testCase.steps {
				var (
					result ReactionResult
					err    error
				)
				if current.like {
					result, err = service.ToggleLike(t.Context(), bystander, comment.ID)
				} else {
					result, err = service.ToggleDislike(t.Context(), bystander, comment.ID)
				}
				require.NoError(t, err)
				assert.Equal(t, current.want, result.State, "step %d", index)

				state, err := service.ReactionOf(t.Context(), bystander, comment.ID)
				require.NoError(t, err)
				assert.Equal(t, current.want, state)

				var likes, dislikes int64
				require.NoError(t, db.Model(&CommentLike{}).Where("user_id = ?", bystander.String()).Count(&likes).Error)
				require.NoError(t, db.Model(&CommentDislike{}).Where("user_id = ?", bystander.String()).Count(&dislikes).Error)
				assert.False(t, likes > 0 && dislikes > 0, "both reactions present after step %d", index)
			}
		})
	}
}

func TestReactionsCountAcrossUsers(t *testing.T) {
	service, db := newTestService(t, nil)
	seedCatalog(t, db, "cat-1", true)
	comment := mustComment(t, service, commenter, "cat-1", "c", "")

	_, err := service.ToggleLike(t.Context(), bystander, comment.ID)
	require.NoError(t, err)
	_, err = service.ToggleLike(t.Context(), catalogOwner, comment.ID)
	require.NoError(t, err)
	result, err := service.ToggleDislike(t.Context(), commenter, comment.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 2, result.Likes)
	assert.EqualValues(t, 1, result.Dislikes)
}

func TestReactionErrors(t *testing.T) {
	service, db := newTestService(t, nil)
	seedCatalog(t, db, "cat-1", true)
	comment := mustComment(t, service, commenter, "cat-1", "c", "")

	_, err := service.ToggleLike(t.Context(), domain.Anonymous, comment.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = service.ToggleDislike(t.Context(), bystander, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state, err := service.ReactionOf(t.Context(), domain.Anonymous, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, ReactionNone, state)
}

func TestReactionOfHidesUnreachableComments(t *testing.T) {
	service, db := newTestService(t, nil)
	seedCatalog(t, db, "cat-private", false)
	comment := mustComment(t, service, catalogOwner, "cat-private", "draft note", "")

	_, err := service.ReactionOf(t.Context(), bystander, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = service.ReactionOf(t.Context(), bystander, comment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = service.ReactionOf(t.Context(), domain.Anonymous, comment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state, err := service.ReactionOf(t.Context(), catalogOwner, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, ReactionNone, state)
}
