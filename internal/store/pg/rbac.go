package pg

import (
	"context"
	"fmt"
	"time"

	"campuslink.app/internal/auth"
	"campuslink.app/internal/ids"
)

type groupStore Store

// Sync upserts every group and replaces its permission set.
func (s *groupStore) Sync(ctx context.Context, groups []auth.Group) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, g := range groups {
		var groupID string
		if err := tx.QueryRowContext(ctx, `
			insert into groups (id, name)
			values ($1, $2)
			on conflict (name) do update set name = excluded.name
			returning id
		`, ids.New(), g.Name).Scan(&groupID); err != nil {
			return fmt.Errorf("upsert group %s: %w", g.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `delete from group_permissions where group_id = $1`, groupID); err != nil {
			return err
		}
		for _, perm := range g.Permissions {
			if _, err := tx.ExecContext(ctx, `
				insert into group_permissions (group_id, permission_key)
				values ($1, $2)
				on conflict do nothing
			`, groupID, perm); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, g.Name, err)
			}
		}
	}
	return tx.Commit()
}

func (s *groupStore) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct gp.permission_key
		from user_groups ug
		join group_permissions gp on gp.group_id = ug.group_id
		where ug.user_id = $1
		order by gp.permission_key
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

type blacklistStore Store

// Add relies on the jti primary key, so concurrent inserts of one jti have a single winner.
func (s *blacklistStore) Add(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		insert into token_blacklist (jti, user_id, expires_at)
		values ($1, $2, $3)
		on conflict (jti) do nothing
	`, jti, nullIfEmpty(userID), expiresAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *blacklistStore) Contains(ctx context.Context, jti string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from token_blacklist where jti = $1)`, jti).Scan(&exists)
	return exists, err
}

// PurgeExpiredBlacklist removes entries whose token can no longer be presented.
func (s *Store) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from token_blacklist where expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
