package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,49}$`)

func (s *Service) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	if err := s.requirePermission(ctx, "roles.view"); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx)
}

func (s *Service) ListRoles(ctx context.Context) ([]domain.Role, error) {
	if err := s.requirePermission(ctx, "roles.view"); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, roleID int64) (domain.Role, error) {
	if err := s.requirePermission(ctx, "roles.view"); err != nil {
		return domain.Role{}, err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return domain.Role{}, err
	}
	return *role, nil
}

// RolePermissions answers the permission check for a role. Callers may
// always read their own role; other roles need roles.view.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.RoleID != roleID {
		if err := s.access.RequirePermission(ctx, actor, "roles.view"); err != nil {
			return nil, err
		}
	}
	return s.access.Permissions(ctx, roleID)
}

func (s *Service) CreateRole(ctx context.Context, req domain.RoleCreateRequest) (domain.Role, error) {
	if err := s.requirePermission(ctx, "roles.manage"); err != nil {
		return domain.Role{}, err
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if !roleNamePattern.MatchString(name) {
		return domain.Role{}, fmt.Errorf("%w: role name must be 3-50 lowercase letters, digits or underscores", store.ErrValidation)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return domain.Role{}, fmt.Errorf("%w: display_name is required", store.ErrValidation)
	}

	created, err := s.repo.CreateRole(ctx, domain.Role{
		Name:        name,
		DisplayName: displayName,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.now(),
		Permissions: normalizeCodes(req.Permissions),
	})
	if err != nil {
		return domain.Role{}, err
	}

	s.logAudit(ctx, "role_create", "role", strconv.FormatInt(created.ID, 10),
		fmt.Sprintf("name=%s,permissions=%d", created.Name, len(created.Permissions)))
	return *created, nil
}

func (s *Service) UpdateRole(ctx context.Context, roleID int64, req domain.RoleUpdateRequest) (domain.Role, error) {
	if err := s.requirePermission(ctx, "roles.manage"); err != nil {
		return domain.Role{}, err
	}

	existing, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return domain.Role{}, err
	}
	if existing.IsSystem {
		return domain.Role{}, fmt.Errorf("%w: %s", store.ErrSystemRole, existing.Name)
	}

	updated := *existing
	if req.DisplayName != nil {
		displayName := strings.TrimSpace(*req.DisplayName)
		if displayName == "" {
			return domain.Role{}, fmt.Errorf("%w: display_name cannot be empty", store.ErrValidation)
		}
		updated.DisplayName = displayName
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Permissions != nil {
		updated.Permissions = normalizeCodes(*req.Permissions)
	}

	saved, err := s.repo.UpdateRole(ctx, updated)
	if err != nil {
		return domain.Role{}, err
	}
	s.access.Invalidate(ctx, roleID)

	s.logAudit(ctx, "role_update", "role", strconv.FormatInt(saved.ID, 10),
		fmt.Sprintf("name=%s,permissions=%d", saved.Name, len(saved.Permissions)))
	return *saved, nil
}

func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	if err := s.requirePermission(ctx, "roles.manage"); err != nil {
		return err
	}

	existing, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return fmt.Errorf("%w: %s", store.ErrSystemRole, existing.Name)
	}
	if err := s.repo.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.access.Invalidate(ctx, roleID)

	s.logAudit(ctx, "role_delete", "role", strconv.FormatInt(roleID, 10), "name="+existing.Name)
	return nil
}

func (s *Service) requirePermission(ctx context.Context, codes ...string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	return s.access.RequirePermission(ctx, actor, codes...)
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
