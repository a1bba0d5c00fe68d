package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

const userSelect = `SELECT u.id, u.username, u.email, u.full_name, u.password_hash, u.role_id,
		r.name AS role_name, u.primary_branch_id, u.is_active, u.created_at
	FROM users u JOIN roles r ON r.id = u.role_id`

const roleColumns = `id, name, display_name, description, is_system, created_at`

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	if err := s.db.GetContext(ctx, &u, s.db.Rebind(userSelect+` WHERE u.id = ?`), id); err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(userSelect+` WHERE LOWER(u.username) = ?`), strings.ToLower(username))
	if err != nil {
		return nil, notFound(err, "user %s", username)
	}
	return &u, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	var permissions []domain.Permission
	err := s.db.SelectContext(ctx, &permissions, `SELECT id, code, name, module, description FROM permissions ORDER BY id`)
	if err != nil {
		return nil, translateError(err)
	}
	return permissions, nil
}

func (s *Store) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	if _, err := s.getRole(ctx, s.db, roleID); err != nil {
		return nil, err
	}
	return s.rolePermissionCodes(ctx, s.db, roleID)
}

func (s *Store) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	if err := s.db.SelectContext(ctx, &roles, `SELECT `+roleColumns+` FROM roles ORDER BY id`); err != nil {
		return nil, translateError(err)
	}

	var links []struct {
		RoleID int64  `db:"role_id"`
		Code   string `db:"code"`
	}
	err := s.db.SelectContext(ctx, &links, `SELECT rp.role_id, p.code
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		ORDER BY p.id`)
	if err != nil {
		return nil, translateError(err)
	}
	codes := make(map[int64][]string, len(roles))
	for _, link := range links {
		codes[link.RoleID] = append(codes[link.RoleID], link.Code)
	}
	for i := range roles {
		roles[i].Permissions = codes[roles[i].ID]
		if roles[i].Permissions == nil {
			roles[i].Permissions = []string{}
		}
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (*domain.Role, error) {
	role, err := s.getRole(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if role.Permissions, err = s.rolePermissionCodes(ctx, s.db, id); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Store) CreateRole(ctx context.Context, role domain.Role) (*domain.Role, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var taken int
	err = tx.GetContext(ctx, &taken, tx.Rebind(`SELECT COUNT(*) FROM roles WHERE LOWER(name) = ?`), strings.ToLower(role.Name))
	if err != nil {
		return nil, translateError(err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("%w: role %s", store.ErrDuplicate, role.Name)
	}

	query, args, err := tx.BindNamed(`INSERT INTO roles (name, display_name, description, is_system, created_at)
		VALUES (:name, :display_name, :description, :is_system, :created_at) RETURNING id`, role)
	if err != nil {
		return nil, err
	}
	if err := tx.GetContext(ctx, &role.ID, query, args...); err != nil {
		return nil, translateError(err)
	}
	if err := setRolePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	role.Permissions = append([]string{}, role.Permissions...)
	return &role, nil
}

func (s *Store) UpdateRole(ctx context.Context, role domain.Role) (*domain.Role, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getRole(ctx, tx, role.ID)
	if err != nil {
		return nil, err
	}
	existing.DisplayName = role.DisplayName
	existing.Description = role.Description

	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE roles SET display_name = ?, description = ? WHERE id = ?`),
		existing.DisplayName, existing.Description, existing.ID)
	if err != nil {
		return nil, translateError(err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM role_permissions WHERE role_id = ?`), existing.ID); err != nil {
		return nil, translateError(err)
	}
	if err := setRolePermissions(ctx, tx, existing.ID, role.Permissions); err != nil {
		return nil, err
	}
	existing.Permissions = append([]string{}, role.Permissions...)

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return existing, nil
}

func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.getRole(ctx, tx, id); err != nil {
		return err
	}
	var users int
	if err := tx.GetContext(ctx, &users, tx.Rebind(`SELECT COUNT(*) FROM users WHERE role_id = ?`), id); err != nil {
		return translateError(err)
	}
	if users > 0 {
		return store.ErrRoleInUse
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM role_permissions WHERE role_id = ?`), id); err != nil {
		return translateError(err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM roles WHERE id = ?`), id); err != nil {
		return translateError(err)
	}
	return translateError(tx.Commit())
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO audit_logs
		(actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:actor_id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)`, entry)
	return translateError(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	query := `SELECT id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs WHERE created_at >= ? AND created_at < ? ORDER BY id DESC`
	args := []any{from, to}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	logs := []domain.AuditLog{}
	if err := s.db.SelectContext(ctx, &logs, s.db.Rebind(query), args...); err != nil {
		return nil, translateError(err)
	}
	return logs, nil
}

func (s *Store) getRole(ctx context.Context, q sqlx.QueryerContext, id int64) (*domain.Role, error) {
	var role domain.Role
	err := sqlx.GetContext(ctx, q, &role, s.db.Rebind(`SELECT `+roleColumns+` FROM roles WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "role %d", id)
	}
	return &role, nil
}

func (s *Store) rolePermissionCodes(ctx context.Context, q sqlx.QueryerContext, roleID int64) ([]string, error) {
	codes := []string{}
	err := sqlx.SelectContext(ctx, q, &codes, s.db.Rebind(`SELECT p.code
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ? ORDER BY p.id`), roleID)
	if err != nil {
		return nil, translateError(err)
	}
	return codes, nil
}

// setRolePermissions links the role to each code. Unknown codes are a
// validation error.
func setRolePermissions(ctx context.Context, tx *sqlx.Tx, roleID int64, codes []string) error {
	if len(codes) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT id, code FROM permissions WHERE code IN (?)`, codes)
	if err != nil {
		return err
	}
	var found []domain.Permission
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return translateError(err)
	}
	ids := make(map[string]int64, len(found))
	for _, p := range found {
		ids[p.Code] = p.ID
	}

	linked := make(map[int64]struct{}, len(codes))
	for _, code := range codes {
		id, ok := ids[code]
		if !ok {
			return fmt.Errorf("%w: unknown permission %s", store.ErrValidation, code)
		}
		if _, dup := linked[id]; dup {
			continue
		}
		linked[id] = struct{}{}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)`),
			roleID, id); err != nil {
			return translateError(err)
		}
	}
	return nil
}
