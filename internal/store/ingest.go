package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/db/models"
)

// IngestUsers upserts the users of one sync pass. With removeStale every user
// of source missing from users is deactivated, an empty list deactivates all of them.
func (s *Store) IngestUsers(ctx context.Context, source string, users []auth.DirectoryUser, removeStale bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names := make([]string, 0, len(users))

		for _, u := range users {
			var user models.User

			err := tx.Where("username = ? AND source = ?", u.Username, source).
				Attrs(models.User{Active: true, Role: string(auth.RoleUser)}).
				FirstOrCreate(&user, models.User{Username: u.Username, Source: source}).Error
			if err != nil {
				return fmt.Errorf("failed to create/get user %s: %w", u.Username, err)
			}

			if err = tx.Model(&user).Updates(map[string]any{
				"display_name": u.DisplayName,
				"email":        u.Email,
				"external_id":  u.ExternalID,
				"active":       true,
			}).Error; err != nil {
				return fmt.Errorf("failed to update user %s: %w", u.Username, err)
			}

			names = append(names, u.Username)
		}

		if !removeStale {
			return nil
		}

		q := tx.Model(&models.User{}).Where("source = ? AND active = ?", source, true)
		if len(names) > 0 {
			q = q.Where("username NOT IN ?", names)
		}

		res := q.Update("active", false)
		if res.Error != nil {
			return fmt.Errorf("failed to deactivate stale users: %w", res.Error)
		}

		if res.RowsAffected > 0 {
			log.Info().Str("source", source).Int64("count", res.RowsAffected).Msg("deactivated stale users")
		}

		return nil
	})
}

// IngestGroups upserts the groups of one sync pass and replaces their
// memberships. Members unknown to the store are skipped. When admin groups are
// configured the role of every user of source is recomputed from them.
func (s *Store) IngestGroups(ctx context.Context, source string, groups []auth.DirectoryGroup) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admins := make(map[uint64]struct{})

		for _, g := range groups {
			externalID := g.ExternalID
			if externalID == "" {
				externalID = g.Name
			}

			var group models.Group

			err := tx.Where("external_id = ? AND source = ?", externalID, source).
				FirstOrCreate(&group, models.Group{
					Name:       g.Name,
					ExternalID: externalID,
					Source:     source,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to create/get group %s: %w", g.Name, err)
			}

			if group.Name != g.Name {
				if err = tx.Model(&group).Update("name", g.Name).Error; err != nil {
					return fmt.Errorf("failed to rename group %s: %w", g.Name, err)
				}
			}

			// Remove old memberships
			if err = tx.Where("group_id = ?", group.ID).Delete(&models.UserGroup{}).Error; err != nil {
				return fmt.Errorf("failed to remove old group memberships: %w", err)
			}

			if len(g.Members) == 0 {
				continue
			}

			var userIDs []uint64
			if err = tx.Model(&models.User{}).
				Where("source = ? AND username IN ?", source, g.Members).
				Pluck("id", &userIDs).Error; err != nil {
				return fmt.Errorf("failed to look up members of %s: %w", g.Name, err)
			}

			_, isAdmin := s.adminGroups[g.Name]

			for _, userID := range userIDs {
				if err = tx.Create(&models.UserGroup{UserID: userID, GroupID: group.ID}).Error; err != nil {
					return fmt.Errorf("failed to add group membership: %w", err)
				}

				if isAdmin {
					admins[userID] = struct{}{}
				}
			}
		}

		if len(s.adminGroups) == 0 {
			return nil
		}

		return s.applyRoles(tx, source, admins)
	})
}

func (s *Store) applyRoles(tx *gorm.DB, source string, admins map[uint64]struct{}) error {
	ids := make([]uint64, 0, len(admins))
	for id := range admins {
		ids = append(ids, id)
	}

	demote := tx.Model(&models.User{}).Where("source = ?", source)
	if len(ids) > 0 {
		demote = demote.Where("id NOT IN ?", ids)

		if err := tx.Model(&models.User{}).Where("id IN ?", ids).
			Update("role", string(auth.RoleAdmin)).Error; err != nil {
			return fmt.Errorf("failed to promote admins: %w", err)
		}
	}

	if err := demote.Update("role", string(auth.RoleUser)).Error; err != nil {
		return fmt.Errorf("failed to demote users: %w", err)
	}

	return nil
}

// Groups returns the names of the groups user belongs to.
func (s *Store) Groups(ctx context.Context, userID string) ([]string, error) {
	uid, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", auth.ErrUserNotFound, userID)
	}

	var groupIDs []uint
	if err = s.db.WithContext(ctx).Model(&models.UserGroup{}).
		Where("user_id = ?", uid).
		Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}

	if len(groupIDs) == 0 {
		return nil, nil
	}

	var names []string
	if err = s.db.WithContext(ctx).Model(&models.Group{}).
		Where("id IN ?", groupIDs).
		Order("name").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}

	return names, nil
}

// ListUsers returns the users of source, all users when source is empty.
func (s *Store) ListUsers(ctx context.Context, source string) ([]auth.User, error) {
	var users []models.User

	q := s.db.WithContext(ctx).Order("source, username")
	if source != "" {
		q = q.Where("source = ?", source)
	}

	if err := q.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]auth.User, 0, len(users))
	for i := range users {
		out = append(out, *toAuthUser(&users[i]))
	}

	return out, nil
}
