package social

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ToggleLike moves the actor's reaction: none to liked, liked to none, disliked to liked.
func (s *Service) ToggleLike(ctx context.Context, actor domain.UserID, commentID string) (ReactionResult, error) {
	return s.toggleReaction(ctx, opToggleLike, actor, commentID, ReactionLiked)
}

// ToggleDislike mirrors ToggleLike: none to disliked, disliked to none, liked to disliked.
func (s *Service) ToggleDislike(ctx context.Context, actor domain.UserID, commentID string) (ReactionResult, error) {
	return s.toggleReaction(ctx, opToggleDislike, actor, commentID, ReactionDisliked)
}

// toggleReaction runs under the comment row lock. Both reaction rows are cleared before the
// next one is written so a user never holds a like and a dislike on the same comment.
func (s *Service) toggleReaction(ctx context.Context, operation string, actor domain.UserID, commentID string, wanted ReactionState) (ReactionResult, error) {
	if err := requireActor(operation, actor); err != nil {
		return ReactionResult{}, err
	}
	var result ReactionResult
	err := s.transact(ctx, operation, func(tx *gorm.DB) error {
		comment, catalog, err := s.loadComment(tx, operation, commentID)
		if err != nil {
			return err
		}
		if !catalog.VisibleTo(actor) {
			return domain.NotFound(operation, reasonNoComment, "comment not found")
		}

		current, err := s.reactionOf(tx, operation, actor, commentID)
		if err != nil {
			return err
		}
		next := wanted
		if current == wanted {
			next = ReactionNone
		}

		if err := tx.Delete(&CommentLike{}, "user_id = ? AND comment_id = ?", actor.String(), commentID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&CommentDislike{}, "user_id = ? AND comment_id = ?", actor.String(), commentID).Error; err != nil {
			return err
		}
		now := s.clock().UTC()
		switch next {
		case ReactionLiked:
			err = tx.Create(&CommentLike{UserID: actor.String(), CommentID: commentID, CreatedAt: now}).Error
		case ReactionDisliked:
			err = tx.Create(&CommentDislike{UserID: actor.String(), CommentID: commentID, CreatedAt: now}).Error
		}
		if err != nil {
			return err
		}

		likes, dislikes, err := s.countReactions(tx, operation, commentID)
		if err != nil {
			return err
		}
		result = ReactionResult{
			State:    next,
			Likes:    likes,
			Dislikes: dislikes,
			Affected: domain.NewAffected(domain.Comments(comment.CatalogID)),
		}
		return nil
	})
	if err != nil {
		return ReactionResult{}, err
	}
	return result, nil
}

// ReactionOf reports the actor's current reaction to a comment. Comments the actor cannot
// see are NotFound, as on every other read.
func (s *Service) ReactionOf(ctx context.Context, actor domain.UserID, commentID string) (ReactionState, error) {
	db := s.db.WithContext(ctx)
	var comment Comment
	err := db.Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReactionNone, domain.NotFound(opReactionOf, reasonNoComment, "comment not found")
	}
	if err != nil {
		s.logError(opReactionOf, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return ReactionNone, domain.Storage(opReactionOf, reasonQueryFailed, err)
	}
	catalog, err := s.loadCatalog(db, opReactionOf, comment.CatalogID)
	if err != nil {
		return ReactionNone, err
	}
	if !catalog.VisibleTo(actor) {
		return ReactionNone, domain.NotFound(opReactionOf, reasonNoComment, "comment not found")
	}
	if actor.IsAnonymous() {
		return ReactionNone, nil
	}
	return s.reactionOf(db, opReactionOf, actor, commentID)
}

func (s *Service) reactionOf(tx *gorm.DB, operation string, actor domain.UserID, commentID string) (ReactionState, error) {
	var liked, disliked int64
	if err := tx.Model(&CommentLike{}).Where("user_id = ? AND comment_id = ?", actor.String(), commentID).Count(&liked).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return ReactionNone, domain.Storage(operation, reasonQueryFailed, err)
	}
	if err := tx.Model(&CommentDislike{}).Where("user_id = ? AND comment_id = ?", actor.String(), commentID).Count(&disliked).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return ReactionNone, domain.Storage(operation, reasonQueryFailed, err)
	}
	switch {
	case liked > 0 && disliked > 0:
		s.logger.Warn("comment has both like and dislike from one user",
			zap.String("comment_id", commentID),
			zap.String("user_id", actor.String()))
		return ReactionLiked, nil
	case liked > 0:
		return ReactionLiked, nil
	case disliked > 0:
		return ReactionDisliked, nil
	default:
		return ReactionNone, nil
	}
}

func (s *Service) countReactions(tx *gorm.DB, operation, commentID string) (int64, int64, error) {
	var likes, dislikes int64
	if err := tx.Model(&CommentLike{}).Where("comment_id = ?", commentID).Count(&likes).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return 0, 0, domain.Storage(operation, reasonQueryFailed, err)
	}
	if err := tx.Model(&CommentDislike{}).Where("comment_id = ?", commentID).Count(&dislikes).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return 0, 0, domain.Storage(operation, reasonQueryFailed, err)
	}
	return likes, dislikes, nil
}
