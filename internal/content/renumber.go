package content

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// positionScope names the table and columns holding a dense ordering.
type positionScope struct {
	model          any
	parentColumn   string
	positionColumn string
}

var (
	chapterPositions = positionScope{model: &Chapter{}, parentColumn: "catalog_id", positionColumn: "chapter_number"}
	pagePositions    = positionScope{model: &Page{}, parentColumn: "chapter_id", positionColumn: "page_number"}
)

// assignPositions writes position = index+1 for every id in orderedIDs, all of which must
// belong to parentID. The write is two statements: the first moves every positive position
// of the parent into the negative range, the second assigns final values with one CASE
// update. Neither statement can collide with the (parent, position) unique index.
func assignPositions(tx *gorm.DB, scope positionScope, parentID string, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return nil
	}

	parked := tx.Model(scope.model).
		Where(scope.parentColumn+" = ? AND "+scope.positionColumn+" > 0", parentID).
		Update(scope.positionColumn, gorm.Expr("0 - "+scope.positionColumn))
	if parked.Error != nil {
		return fmt.Errorf("park positions: %w", parked.Error)
	}

	var expression strings.Builder
	args := make([]any, 0, len(orderedIDs)*2)
	expression.WriteString("CASE id")
	for index, id := range orderedIDs {
		expression.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		args = append(args, id, index+1)
	}
	expression.WriteString(" END")

	assigned := tx.Model(scope.model).
		Where(scope.parentColumn+" = ? AND id IN ?", parentID, orderedIDs).
		Update(scope.positionColumn, gorm.Expr(expression.String(), args...))
	if assigned.Error != nil {
		return fmt.Errorf("assign positions: %w", assigned.Error)
	}
	if assigned.RowsAffected != int64(len(orderedIDs)) {
		return fmt.Errorf("assign positions: updated %d rows, expected %d", assigned.RowsAffected, len(orderedIDs))
	}
	return nil
}

// pageIDsByPosition returns page ids sorted by their current page number.
func pageIDsByPosition(pages []Page) []string {
	sorted := append([]Page(nil), pages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PageNumber < sorted[j].PageNumber
	})
	ids := make([]string, len(sorted))
	for i, page := range sorted {
		ids[i] = page.ID
	}
	return ids
}

// permutationMismatch explains why requested is not a permutation of existing, or returns
// "" when it is.
func permutationMismatch(existing, requested []string) string {
	if len(requested) != len(existing) {
		return fmt.Sprintf("expected %d chapter ids, got %d", len(existing), len(requested))
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, ok := known[id]; !ok {
			return fmt.Sprintf("chapter %q does not belong to this catalog", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Sprintf("chapter %q appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return ""
}
