package social

import (
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
)

// ReactionState is a user's reaction to one comment.
type ReactionState string

const (
	ReactionNone     ReactionState = "none"
	ReactionLiked    ReactionState = "liked"
	ReactionDisliked ReactionState = "disliked"
)

// Comment is a catalog comment. Replies point at a top-level comment through ParentID and
// are never pinned.
type Comment struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	CatalogID string    `gorm:"column:catalog_id;size:64;not null;index:idx_comments_catalog_created,priority:1"`
	AuthorID  string    `gorm:"column:author_id;size:190;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	ParentID  *string   `gorm:"column:parent_id;size:64;index"`
	IsPinned  bool      `gorm:"column:is_pinned;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_comments_catalog_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// IsReply reports whether the comment answers another comment.
func (c Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// CommentLike is one member of a comment's like-set.
type CommentLike struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CommentID string    `gorm:"column:comment_id;primaryKey;size:64;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CommentLike) TableName() string {
	return "comment_likes"
}

// CommentDislike is one member of a comment's dislike-set.
type CommentDislike struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CommentID string    `gorm:"column:comment_id;primaryKey;size:64;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CommentDislike) TableName() string {
	return "comment_dislikes"
}

// Models lists the tables owned by the social engine.
func Models() []any {
	return []any{&Comment{}, &CommentLike{}, &CommentDislike{}}
}

// CommentInput carries a new comment.
type CommentInput struct {
	Content  string `json:"content" validate:"notblank,max=5000"`
	ParentID string `json:"parent_id" validate:"max=64"`
}

// CommentResult is returned by comment mutations.
type CommentResult struct {
	Comment  Comment
	Affected domain.Affected
}

// DeleteResult reports the comments removed by DeleteComment.
type DeleteResult struct {
	DeletedIDs []string
	Affected   domain.Affected
}

// ReactionResult reports a user's reaction state after a toggle.
type ReactionResult struct {
	State    ReactionState
	Likes    int64
	Dislikes int64
	Affected domain.Affected
}

// Thread is a comment together with its reaction counts, the viewer's own reaction and,
// for top-level comments, the replies oldest first.
type Thread struct {
	Comment  Comment
	Likes    int64
	Dislikes int64
	Viewer   ReactionState
	Replies  []Thread
}
