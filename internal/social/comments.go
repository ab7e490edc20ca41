package social

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateComment posts a comment on a catalog. A reply to a reply is attached to the
// top-level comment of that thread.
func (s *Service) CreateComment(ctx context.Context, actor domain.UserID, catalogID string, input CommentInput) (CommentResult, error) {
	if err := requireActor(opCreateComment, actor); err != nil {
		return CommentResult{}, err
	}
	input.Content = strings.TrimSpace(input.Content)
	input.ParentID = strings.TrimSpace(input.ParentID)
	if err := s.validator.Struct(opCreateComment, input); err != nil {
		return CommentResult{}, err
	}

	var created Comment
	err := s.transact(ctx, opCreateComment, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opCreateComment, catalogID)
		if err != nil {
			return err
		}
		if !catalog.VisibleTo(actor) {
			return domain.NotFound(opCreateComment, reasonNoCatalog, "catalog not found")
		}

		var parentID *string
		if input.ParentID != "" {
			root, err := s.resolveThreadRoot(tx, input.ParentID)
			if err != nil {
				return err
			}
			if root.CatalogID != catalogID {
				return domain.Validation(opCreateComment, "parent_in_other_catalog", "parent comment belongs to another catalog")
			}
			parentID = &root.ID
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreateComment, reasonIDFailed, err)
			return domain.Storage(opCreateComment, reasonIDFailed, err)
		}
		created = Comment{
			ID:        id,
			CatalogID: catalogID,
			AuthorID:  actor.String(),
			Content:   input.Content,
			ParentID:  parentID,
			CreatedAt: s.clock().UTC(),
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return CommentResult{}, err
	}
	return CommentResult{
		Comment:  created,
		Affected: domain.NewAffected(domain.Comments(catalogID), domain.Catalog(catalogID)),
	}, nil
}

// resolveThreadRoot follows parent links from commentID up to its top-level comment.
func (s *Service) resolveThreadRoot(tx *gorm.DB, commentID string) (Comment, error) {
	currentID := commentID
	for hop := 0; hop < maxAncestorHops; hop++ {
		var comment Comment
		err := tx.Where("id = ?", currentID).Take(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Comment{}, domain.NotFound(opCreateComment, reasonNoParent, "parent comment not found")
		}
		if err != nil {
			s.logError(opCreateComment, reasonQueryFailed, err, zap.String("comment_id", currentID))
			return Comment{}, domain.Storage(opCreateComment, reasonQueryFailed, err)
		}
		if !comment.IsReply() {
			return comment, nil
		}
		currentID = *comment.ParentID
	}
	return Comment{}, domain.Validation(opCreateComment, "thread_too_deep", "parent comment thread is malformed")
}

// DeleteComment removes a comment, its replies and every reaction on them. The comment
// author and the catalog author may delete.
func (s *Service) DeleteComment(ctx context.Context, actor domain.UserID, commentID string) (DeleteResult, error) {
	if err := requireActor(opDeleteComment, actor); err != nil {
		return DeleteResult{}, err
	}
	var result DeleteResult
	err := s.transact(ctx, opDeleteComment, func(tx *gorm.DB) error {
		comment, catalog, err := s.loadComment(tx, opDeleteComment, commentID)
		if err != nil {
			return err
		}
		if comment.AuthorID != actor.String() && catalog.AuthorID != actor.String() {
			return domain.Unauthorized(opDeleteComment, reasonForbidden, "only the comment or catalog author can delete this comment")
		}

		doomed := []string{comment.ID}
		frontier := []string{comment.ID}
		for hop := 0; hop < maxAncestorHops && len(frontier) > 0; hop++ {
			var children []string
			if err := tx.Model(&Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return err
			}
			doomed = append(doomed, children...)
			frontier = children
		}

		if err := tx.Where("comment_id IN ?", doomed).Delete(&CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("comment_id IN ?", doomed).Delete(&CommentDislike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", doomed).Delete(&Comment{}).Error; err != nil {
			return err
		}
		result.DeletedIDs = doomed
		result.Affected = domain.NewAffected(domain.Comments(comment.CatalogID), domain.Catalog(comment.CatalogID))
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return result, nil
}

// TogglePinComment flips the pinned flag of a top-level comment. Only the catalog author may
// pin.
func (s *Service) TogglePinComment(ctx context.Context, actor domain.UserID, commentID string) (CommentResult, error) {
	if err := requireActor(opTogglePin, actor); err != nil {
		return CommentResult{}, err
	}
	var pinned Comment
	err := s.transact(ctx, opTogglePin, func(tx *gorm.DB) error {
		comment, catalog, err := s.loadComment(tx, opTogglePin, commentID)
		if err != nil {
			return err
		}
		if catalog.AuthorID != actor.String() {
			return domain.Unauthorized(opTogglePin, reasonForbidden, "only the catalog author can pin comments")
		}
		if comment.IsReply() {
			return domain.Validation(opTogglePin, "reply_not_pinnable", "replies cannot be pinned")
		}
		comment.IsPinned = !comment.IsPinned
		if err := tx.Model(&Comment{}).Where("id = ?", comment.ID).Update("is_pinned", comment.IsPinned).Error; err != nil {
			return err
		}
		pinned = comment
		return nil
	})
	if err != nil {
		return CommentResult{}, err
	}
	return CommentResult{Comment: pinned, Affected: domain.NewAffected(domain.Comments(pinned.CatalogID))}, nil
}

type reactionCountRow struct {
	CommentID string
	Total     int64
}

// ListComments returns the catalog's threads: pinned first, then newest first, with replies
// oldest first.
func (s *Service) ListComments(ctx context.Context, viewer domain.UserID, catalogID string) ([]Thread, error) {
	if s == nil || s.db == nil {
		return nil, domain.Storage(opListComments, reasonMissingDB, errMissingDatabase)
	}
	db := s.db.WithContext(ctx)
	catalog, err := s.loadCatalog(db, opListComments, catalogID)
	if err != nil {
		return nil, err
	}
	if !catalog.VisibleTo(viewer) {
		return nil, domain.NotFound(opListComments, reasonNoCatalog, "catalog not found")
	}

	var comments []Comment
	if err := db.Where("catalog_id = ?", catalogID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return nil, domain.Storage(opListComments, reasonQueryFailed, err)
	}
	if len(comments) == 0 {
		return []Thread{}, nil
	}

	likes, err := s.reactionCounts(db, &CommentLike{}, catalogID)
	if err != nil {
		return nil, err
	}
	dislikes, err := s.reactionCounts(db, &CommentDislike{}, catalogID)
	if err != nil {
		return nil, err
	}
	states, err := s.viewerStates(db, viewer, catalogID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Comment, len(comments))
	for _, comment := range comments {
		byID[comment.ID] = comment
	}
	node := func(comment Comment) Thread {
		state, ok := states[comment.ID]
		if !ok {
			state = ReactionNone
		}
		return Thread{
			Comment:  comment,
			Likes:    likes[comment.ID],
			Dislikes: dislikes[comment.ID],
			Viewer:   state,
		}
	}

	replies := make(map[string][]Thread)
	roots := make([]Thread, 0, len(comments))
	for _, comment := range comments {
		if !comment.IsReply() {
			roots = append(roots, node(comment))
			continue
		}
		rootID, ok := s.threadRootOf(comment, byID)
		if !ok {
			continue
		}
		replies[rootID] = append(replies[rootID], node(comment))
	}

	sort.SliceStable(roots, func(i, j int) bool {
		left, right := roots[i].Comment, roots[j].Comment
		if left.IsPinned != right.IsPinned {
			return left.IsPinned
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID > right.ID
	})
	for i := range roots {
		roots[i].Replies = replies[roots[i].Comment.ID]
		if roots[i].Replies == nil {
			roots[i].Replies = []Thread{}
		}
	}
	return roots, nil
}

// threadRootOf finds the top-level ancestor of a reply using the adjacency built for one
// listing. Replies nested below another reply, or whose ancestor is gone, are logged.
func (s *Service) threadRootOf(comment Comment, byID map[string]Comment) (string, bool) {
	current := comment
	for hop := 0; hop < maxAncestorHops; hop++ {
		parent, ok := byID[*current.ParentID]
		if !ok {
			s.logger.Warn("comment parent missing",
				zap.String("comment_id", comment.ID),
				zap.String("parent_id", *current.ParentID))
			return "", false
		}
		if !parent.IsReply() {
			if hop > 0 {
				s.logger.Warn("comment nested below a reply",
					zap.String("comment_id", comment.ID),
					zap.String("parent_id", *comment.ParentID),
					zap.String("thread_root_id", parent.ID))
			}
			return parent.ID, true
		}
		current = parent
	}
	s.logger.Warn("comment thread exceeds depth bound", zap.String("comment_id", comment.ID))
	return "", false
}

func (s *Service) reactionCounts(db *gorm.DB, model any, catalogID string) (map[string]int64, error) {
	var rows []reactionCountRow
	if err := db.Model(model).
		Select("comment_id, COUNT(*) AS total").
		Where("comment_id IN (?)", db.Model(&Comment{}).Select("id").Where("catalog_id = ?", catalogID)).
		Group("comment_id").
		Scan(&rows).Error; err != nil {
		s.logError(opListComments, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return nil, domain.Storage(opListComments, reasonQueryFailed, err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CommentID] = row.Total
	}
	return counts, nil
}

func (s *Service) viewerStates(db *gorm.DB, viewer domain.UserID, catalogID string) (map[string]ReactionState, error) {
	states := make(map[string]ReactionState)
	if viewer.IsAnonymous() {
		return states, nil
	}
	inCatalog := db.Model(&Comment{}).Select("id").Where("catalog_id = ?", catalogID)
	for _, source := range []struct {
		model any
		state ReactionState
	}{
		{&CommentLike{}, ReactionLiked},
		{&CommentDislike{}, ReactionDisliked},
	} {
		var ids []string
		if err := db.Model(source.model).
			Where("user_id = ? AND comment_id IN (?)", viewer.String(), inCatalog).
			Pluck("comment_id", &ids).Error; err != nil {
			s.logError(opListComments, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
			return nil, domain.Storage(opListComments, reasonQueryFailed, err)
		}
		for _, id := range ids {
			states[id] = source.state
		}
	}
	return states, nil
}
