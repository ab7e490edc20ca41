package content

import (
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
)

// DefaultPageContent seeds the first page of a text chapter.
const DefaultPageContent = "<h1>Start writing here...</h1>"

// Catalog is a published collection of chapters owned by one author.
type Catalog struct {
	ID            string    `gorm:"column:id;primaryKey;size:64;not null"`
	AuthorID      string    `gorm:"column:author_id;size:190;not null;index:idx_catalogs_author_created,priority:1"`
	Title         string    `gorm:"column:title;size:200;not null"`
	Description   string    `gorm:"column:description;type:text;not null;default:''"`
	Category      string    `gorm:"column:category;size:100;not null;default:''"`
	IsPublic      bool      `gorm:"column:is_public;not null;default:false;index:idx_catalogs_public_created,priority:1"`
	CoverImageURL string    `gorm:"column:cover_image_url;size:512;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_catalogs_author_created,priority:2;index:idx_catalogs_public_created,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Catalog) TableName() string {
	return "catalogs"
}

// VisibleTo reports whether viewer may read the catalog. Private catalogs are visible only
// to their author.
func (c Catalog) VisibleTo(viewer domain.UserID) bool {
	return c.IsPublic || (!viewer.IsAnonymous() && c.AuthorID == viewer.String())
}

// Chapter is an ordered section of a catalog. A chapter either owns pages or points at an
// externally stored document.
type Chapter struct {
	ID            string    `gorm:"column:id;primaryKey;size:64;not null"`
	CatalogID     string    `gorm:"column:catalog_id;size:64;not null;uniqueIndex:idx_chapters_catalog_number,priority:1"`
	Title         string    `gorm:"column:title;size:200;not null"`
	ChapterNumber int       `gorm:"column:chapter_number;not null;uniqueIndex:idx_chapters_catalog_number,priority:2"`
	DocumentURL   *string   `gorm:"column:document_url;size:512"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Chapter) TableName() string {
	return "chapters"
}

// HasDocument reports whether the chapter is backed by an external document.
func (c Chapter) HasDocument() bool {
	return c.DocumentURL != nil && *c.DocumentURL != ""
}

// Page is one ordered unit of rich-text content inside a chapter.
type Page struct {
	ID         string    `gorm:"column:id;primaryKey;size:64;not null"`
	ChapterID  string    `gorm:"column:chapter_id;size:64;not null;uniqueIndex:idx_pages_chapter_number,priority:1"`
	PageNumber int       `gorm:"column:page_number;not null;uniqueIndex:idx_pages_chapter_number,priority:2"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Page) TableName() string {
	return "pages"
}

// CatalogLike records that a user hearted a catalog.
type CatalogLike struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CatalogID string    `gorm:"column:catalog_id;primaryKey;size:64;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CatalogLike) TableName() string {
	return "catalog_likes"
}

// Models lists every table owned by the content engine, in migration order.
func Models() []any {
	return []any{&Catalog{}, &Chapter{}, &Page{}, &CatalogLike{}}
}

// CatalogInput carries the editable catalog metadata.
type CatalogInput struct {
	Title         string `json:"title" validate:"notblank,max=200"`
	Description   string `json:"description" validate:"max=5000"`
	Category      string `json:"category" validate:"max=100"`
	IsPublic      bool   `json:"is_public"`
	CoverImageURL string `json:"cover_image_url" validate:"max=512"`
}

// ChapterInput carries the fields accepted when creating a chapter.
type ChapterInput struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	DocumentURL string `json:"document_url" validate:"max=512"`
}

type chapterTitleInput struct {
	Title string `json:"title" validate:"notblank,max=200"`
}

type documentInput struct {
	DocumentURL string `json:"document_url" validate:"notblank,max=512"`
}

type pageInput struct {
	PageNumber int `json:"page_number" validate:"gte=1"`
}

// CatalogSummary is a listing row with aggregate counts.
type CatalogSummary struct {
	Catalog      Catalog
	ChapterCount int64
	LikeCount    int64
}

// CatalogDetail is a catalog with its ordered chapters.
type CatalogDetail struct {
	Catalog      Catalog
	Chapters     []Chapter
	LikeCount    int64
	LikedByUser  bool
	CommentCount int64
}

// ChapterDetail is a chapter with its ordered pages and owning catalog.
type ChapterDetail struct {
	Catalog Catalog
	Chapter Chapter
	Pages   []Page
}

// CatalogResult is returned by catalog mutations.
type CatalogResult struct {
	Catalog  Catalog
	Affected domain.Affected
}

// ChapterResult is returned by chapter mutations.
type ChapterResult struct {
	Chapter  Chapter
	Pages    []Page
	Affected domain.Affected
}

// ReorderResult carries the catalog's chapters in their new order.
type ReorderResult struct {
	Chapters []Chapter
	Affected domain.Affected
}

// PageResult is returned by SavePage.
type PageResult struct {
	Page     Page
	Created  bool
	Affected domain.Affected
}

// DeletePageResult carries the renumbered survivors of a page deletion.
type DeletePageResult struct {
	Pages    []Page
	Affected domain.Affected
}

// DeleteResult is returned by deletions that leave nothing to report but the affected set.
type DeleteResult struct {
	Affected domain.Affected
}

// LikeResult reports the catalog like state after a toggle.
type LikeResult struct {
	Liked     bool
	LikeCount int64
	Affected  domain.Affected
}
