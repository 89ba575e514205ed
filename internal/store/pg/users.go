package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campuslink.app/internal/auth"
	"campuslink.app/internal/ids"
)

const userColumns = `id, email, password_hash, name, phone, image_url, role,
	is_active, is_verified, is_superuser, created_at, updated_at`

type userStore Store

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u     auth.User
		phone sql.NullString
		image sql.NullString
		role  string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &phone, &image, &role,
		&u.IsActive, &u.IsVerified, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Phone = phone.String
	u.ImageURL = image.String
	u.Role = auth.Role(role)
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = auth.NormalizeEmail(u.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, name, phone, image_url, role, is_active, is_verified, is_superuser)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.Name, nullIfEmpty(u.Phone), nullIfEmpty(u.ImageURL),
		string(u.Role), u.IsActive, u.IsVerified, u.IsSuperuser)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	if err := joinRoleGroup(ctx, tx, u.ID, u.Role); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, auth.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) List(ctx context.Context, filter auth.UserFilter) ([]*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		where []string
		args  []any
	)
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc, id desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *userStore) UpdateProfile(ctx context.Context, id string, upd auth.ProfileUpdate) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Phone != nil {
		args = append(args, nullIfEmpty(*upd.Phone))
		sets = append(sets, fmt.Sprintf("phone = $%d", len(args)))
	}
	if upd.ImageURL != nil {
		args = append(args, nullIfEmpty(*upd.ImageURL))
		sets = append(sets, fmt.Sprintf("image_url = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.Find(ctx, id)
	}
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s, updated_at = now() where id = $%d returning %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users set is_active = $1, updated_at = now()
		where id = $2
		returning `+userColumns, active, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) ChangeRole(ctx context.Context, id string, role auth.Role) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanUser(tx.QueryRowContext(ctx, `
		update users set role = $1, updated_at = now()
		where id = $2
		returning `+userColumns, string(role), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_groups where user_id = $1`, id); err != nil {
		return nil, err
	}
	if err := joinRoleGroup(ctx, tx, id, role); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// joinRoleGroup is a no-op when the role's group has not been synced yet.
func joinRoleGroup(ctx context.Context, tx *sql.Tx, userID string, role auth.Role) error {
	_, err := tx.ExecContext(ctx, `
		insert into user_groups (user_id, group_id)
		select $1, id from groups where name = $2
		on conflict do nothing
	`, userID, role.Group())
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}
