package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
	"impfportal/pkg/platform/tx"
)

// PostgresStore persists sites and slots in PostgreSQL. When the context
// carries a transaction every statement joins it, so slot increments commit
// atomically with the dossier mutation that triggered them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) CreateSite(ctx context.Context, site *Site) error {
	if err := site.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO sites (id, name, address, managed, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		site.ID.String(), site.Name, site.Address, site.Managed, site.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create site: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSite(ctx context.Context, siteID domain.SiteID) (*Site, error) {
	query := `SELECT id, name, address, managed, created_at FROM sites WHERE id = $1`
	var site Site
	var rawID string
	err := s.conn(ctx).QueryRowContext(ctx, query, siteID.String()).
		Scan(&rawID, &site.Name, &site.Address, &site.Managed, &site.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	parsed, err := domain.ParseSiteID(rawID)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	site.ID = parsed
	return &site, nil
}

func (s *PostgresStore) ListSites(ctx context.Context) ([]*Site, error) {
	query := `SELECT id, name, address, managed, created_at FROM sites ORDER BY name`
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []*Site
	for rows.Next() {
		var site Site
		var rawID string
		if err := rows.Scan(&rawID, &site.Name, &site.Address, &site.Managed, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		parsed, err := domain.ParseSiteID(rawID)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.ID = parsed
		out = append(out, &site)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateSlot(ctx context.Context, slot *Slot) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO slots (id, site_id, position, start_at, end_at, capacity, reserved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		slot.ID.String(), slot.SiteID.String(), string(slot.Position),
		slot.StartAt, slot.EndAt, slot.Capacity, slot.Reserved)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSlot(ctx context.Context, slotID domain.SlotID) (*Slot, error) {
	query := `
		SELECT id, site_id, position, start_at, end_at, capacity, reserved
		FROM slots WHERE id = $1
	`
	row := s.conn(ctx).QueryRowContext(ctx, query, slotID.String())
	slot, err := scanSlot(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func (s *PostgresStore) ListFreeSlots(ctx context.Context, siteID domain.SiteID, position disease.DosePosition, notBefore time.Time) ([]*Slot, error) {
	query := `
		SELECT id, site_id, position, start_at, end_at, capacity, reserved
		FROM slots
		WHERE site_id = $1 AND position = $2 AND reserved < capacity AND start_at >= $3
		ORDER BY start_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, siteID.String(), string(position), notBefore)
	if err != nil {
		return nil, fmt.Errorf("list free slots: %w", err)
	}
	defer rows.Close()

	var out []*Slot
	for rows.Next() {
		slot, err := scanSlot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// ReserveCapacity performs the guarded increment in one statement, so two
// concurrent reservations for the last unit resolve to exactly one winner at
// the database, not in application code.
func (s *PostgresStore) ReserveCapacity(ctx context.Context, slotID domain.SlotID) error {
	query := `UPDATE slots SET reserved = reserved + 1 WHERE id = $1 AND reserved < capacity`
	res, err := s.conn(ctx).ExecContext(ctx, query, slotID.String())
	if err != nil {
		return fmt.Errorf("reserve slot capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve slot capacity: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	err = s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("reserve slot capacity: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrSlotFull
}

func (s *PostgresStore) ReleaseCapacity(ctx context.Context, slotID domain.SlotID) error {
	query := `UPDATE slots SET reserved = reserved - 1 WHERE id = $1 AND reserved > 0`
	res, err := s.conn(ctx).ExecContext(ctx, query, slotID.String())
	if err != nil {
		return fmt.Errorf("release slot capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release slot capacity: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	err = s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("release slot capacity: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	// Already at zero; releasing is idempotent.
	return nil
}

func scanSlot(scan func(...any) error) (*Slot, error) {
	var slot Slot
	var rawID, rawSiteID, rawPosition string
	if err := scan(&rawID, &rawSiteID, &rawPosition, &slot.StartAt, &slot.EndAt, &slot.Capacity, &slot.Reserved); err != nil {
		return nil, err
	}
	id, err := domain.ParseSlotID(rawID)
	if err != nil {
		return nil, err
	}
	siteID, err := domain.ParseSiteID(rawSiteID)
	if err != nil {
		return nil, err
	}
	position, err := disease.ParseDosePosition(rawPosition)
	if err != nil {
		return nil, err
	}
	slot.ID = id
	slot.SiteID = siteID
	slot.Position = position
	return &slot, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
