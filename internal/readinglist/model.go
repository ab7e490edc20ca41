package readinglist

import (
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
)

// Outcome tags what a Toggle call did.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeMoved   Outcome = "moved"
	OutcomeRemoved Outcome = "removed"
)

// Entry bookmarks a catalog for a user, optionally filed under one of the user's groups.
type Entry struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_reading_list_user_catalog,priority:1"`
	CatalogID string    `gorm:"column:catalog_id;size:64;not null;uniqueIndex:idx_reading_list_user_catalog,priority:2;index"`
	GroupID   *string   `gorm:"column:group_id;size:64;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "reading_list_entries"
}

// Group is a named folder of reading list entries.
type Group struct {
	ID        string    `gorm:"column:id;primaryKey;size:64;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_reading_list_groups_user_name,priority:1"`
	Name      string    `gorm:"column:name;size:100;not null;uniqueIndex:idx_reading_list_groups_user_name,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "reading_list_groups"
}

// Models lists the tables owned by the reading list engine.
func Models() []any {
	return []any{&Group{}, &Entry{}}
}

type groupInput struct {
	Name string `json:"name" validate:"notblank,max=100"`
}

// ToggleResult reports the outcome of Toggle. Entry is nil when the entry was removed.
type ToggleResult struct {
	Outcome  Outcome
	Entry    *Entry
	Affected domain.Affected
}

// GroupResult is returned by group mutations.
type GroupResult struct {
	Group    Group
	Affected domain.Affected
}

// DeleteGroupResult reports how many entries lost their group reference.
type DeleteGroupResult struct {
	UngroupedEntries int64
	Affected         domain.Affected
}

// EntryView is a reading list row joined with its catalog and group.
type EntryView struct {
	Entry           Entry
	CatalogTitle    string
	CatalogAuthorID string
	CoverImageURL   string
	GroupName       string
}
