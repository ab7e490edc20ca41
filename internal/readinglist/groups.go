package readinglist

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateGroup adds a named group. Names are unique per user.
func (s *Service) CreateGroup(ctx context.Context, user domain.UserID, name string) (GroupResult, error) {
	if err := requireUser(opCreateGroup, user); err != nil {
		return GroupResult{}, err
	}
	input := groupInput{Name: strings.TrimSpace(name)}
	if err := s.validator.Struct(opCreateGroup, input); err != nil {
		return GroupResult{}, err
	}

	var group Group
	err := s.transact(ctx, opCreateGroup, func(tx *gorm.DB) error {
		if err := s.ensureNameFree(tx, opCreateGroup, user, input.Name, ""); err != nil {
			return err
		}
		id, err := s.idProvider.NewID()
		if err != nil {
			return err
		}
		group = Group{ID: id, UserID: user.String(), Name: input.Name, CreatedAt: s.clock().UTC()}
		return tx.Create(&group).Error
	})
	if err != nil {
		return GroupResult{}, err
	}
	return GroupResult{Group: group, Affected: domain.NewAffected(domain.ReadingList(user.String()))}, nil
}

// UpdateGroup renames a group owned by the user.
func (s *Service) UpdateGroup(ctx context.Context, user domain.UserID, groupID, name string) (GroupResult, error) {
	if err := requireUser(opUpdateGroup, user); err != nil {
		return GroupResult{}, err
	}
	input := groupInput{Name: strings.TrimSpace(name)}
	if err := s.validator.Struct(opUpdateGroup, input); err != nil {
		return GroupResult{}, err
	}

	var group Group
	err := s.transact(ctx, opUpdateGroup, func(tx *gorm.DB) error {
		owned, err := s.ownedGroup(tx, opUpdateGroup, user, groupID)
		if err != nil {
			return err
		}
		if owned.Name == input.Name {
			group = owned
			return nil
		}
		if err := s.ensureNameFree(tx, opUpdateGroup, user, input.Name, groupID); err != nil {
			return err
		}
		owned.Name = input.Name
		if err := tx.Model(&Group{}).Where("id = ?", groupID).Update("name", owned.Name).Error; err != nil {
			return err
		}
		group = owned
		return nil
	})
	if err != nil {
		return GroupResult{}, err
	}
	return GroupResult{Group: group, Affected: domain.NewAffected(domain.ReadingList(user.String()))}, nil
}

// DeleteGroup removes a group. Its entries stay on the reading list, ungrouped.
func (s *Service) DeleteGroup(ctx context.Context, user domain.UserID, groupID string) (DeleteGroupResult, error) {
	if err := requireUser(opDeleteGroup, user); err != nil {
		return DeleteGroupResult{}, err
	}
	var result DeleteGroupResult
	err := s.transact(ctx, opDeleteGroup, func(tx *gorm.DB) error {
		if _, err := s.ownedGroup(tx, opDeleteGroup, user, groupID); err != nil {
			return err
		}
		cleared := tx.Model(&Entry{}).Where("group_id = ?", groupID).Update("group_id", nil)
		if cleared.Error != nil {
			return cleared.Error
		}
		if err := tx.Delete(&Group{}, "id = ?", groupID).Error; err != nil {
			return err
		}
		result.UngroupedEntries = cleared.RowsAffected
		return nil
	})
	if err != nil {
		return DeleteGroupResult{}, err
	}
	result.Affected = domain.NewAffected(domain.ReadingList(user.String()))
	return result, nil
}

// ListGroups returns the user's groups ordered by name.
func (s *Service) ListGroups(ctx context.Context, user domain.UserID) ([]Group, error) {
	if err := requireUser(opListGroups, user); err != nil {
		return nil, err
	}
	var groups []Group
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.String()).
		Order("name ASC").
		Find(&groups).Error; err != nil {
		s.logError(opListGroups, reasonQuery, err)
		return nil, domain.Storage(opListGroups, reasonQuery, err)
	}
	return groups, nil
}

// ownedGroup loads a group under a row lock. Groups of other users are reported as missing.
func (s *Service) ownedGroup(tx *gorm.DB, operation string, user domain.UserID, groupID string) (Group, error) {
	var group Group
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", groupID, user.String()).
		Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Group{}, domain.NotFound(operation, reasonNoGroup, "group not found")
	}
	if err != nil {
		s.logError(operation, reasonQuery, err, zap.String("group_id", groupID))
		return Group{}, domain.Storage(operation, reasonQuery, err)
	}
	return group, nil
}

func (s *Service) ensureNameFree(tx *gorm.DB, operation string, user domain.UserID, name, exceptID string) error {
	query := tx.Model(&Group{}).Where("user_id = ? AND name = ?", user.String(), name)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.Conflict(operation, reasonNameUsed, "a group with this name already exists", nil)
	}
	return nil
}
