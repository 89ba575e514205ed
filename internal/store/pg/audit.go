package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"campuslink.app/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func encodeDetails(details map[string]any) ([]byte, error) {
	if len(details) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return raw, nil
}

func (s *Store) AppendEntry(ctx context.Context, e *audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, user_id, action, resource, resource_id, ip_address, user_agent, details, success, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullIfEmpty(e.UserID), string(e.Action), e.Resource, nullIfEmpty(e.ResourceID),
		nullIfEmpty(e.IP), e.UserAgent, details, e.Success, e.CreatedAt)
	return err
}

func (s *Store) AppendSecurityEvent(ctx context.Context, ev *audit.SecurityEvent) error {
	if s.db == nil {
		return errNoDB
	}
	details, err := encodeDetails(ev.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into security_events (id, event_type, severity, user_id, ip_address, description, details, resolved, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.EventType, string(ev.Severity), nullIfEmpty(ev.UserID), nullIfEmpty(ev.IP),
		ev.Description, details, ev.Resolved, ev.CreatedAt)
	return err
}

func (s *Store) ListSecurityEvents(ctx context.Context, filter audit.EventFilter) ([]audit.SecurityEvent, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, event_type, severity, user_id, ip_address, description, details, resolved, created_at
		from security_events
		where ($1 = false or resolved = false)
		order by created_at desc, id desc
		limit $2
	`, filter.UnresolvedOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.SecurityEvent
	for rows.Next() {
		var (
			ev       audit.SecurityEvent
			severity string
			userID   sql.NullString
			ip       sql.NullString
			raw      []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &severity, &userID, &ip, &ev.Description, &raw, &ev.Resolved, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Severity = audit.Severity(severity)
		ev.UserID = userID.String
		ev.IP = ip.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *Store) ResolveSecurityEvent(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update security_events set resolved = true where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return audit.ErrNotFound
	}
	return nil
}
