package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"impfportal/internal/disease"
	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
	"impfportal/pkg/platform/tx"
)

// PostgresAppointmentStore persists appointments in PostgreSQL. A unique
// index on (dossier_id, position) backs the one-live-appointment-per-position
// invariant; violations surface as sentinel.ErrConflict.
type PostgresAppointmentStore struct {
	db *sql.DB
}

func NewPostgresAppointmentStore(db *sql.DB) *PostgresAppointmentStore {
	return &PostgresAppointmentStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresAppointmentStore) conn(ctx context.Context) dbtx {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresAppointmentStore) Create(ctx context.Context, appointment *Appointment) error {
	query := `
		INSERT INTO appointments (id, dossier_id, slot_id, site_id, position, start_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		appointment.ID.String(), appointment.DossierID.String(), appointment.SlotID.String(),
		appointment.SiteID.String(), string(appointment.Position),
		appointment.StartAt, appointment.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (s *PostgresAppointmentStore) Get(ctx context.Context, id domain.AppointmentID) (*Appointment, error) {
	query := `
		SELECT id, dossier_id, slot_id, site_id, position, start_at, created_at
		FROM appointments WHERE id = $1
	`
	row := s.conn(ctx).QueryRowContext(ctx, query, id.String())
	appointment, err := ScanAppointment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appointment, nil
}

func (s *PostgresAppointmentStore) Delete(ctx context.Context, id domain.AppointmentID) error {
	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresAppointmentStore) ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Appointment, error) {
	query := `
		SELECT id, dossier_id, slot_id, site_id, position, start_at, created_at
		FROM appointments WHERE dossier_id = $1 ORDER BY start_at
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, dossierID.String())
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appointment, err := ScanAppointment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, appointment)
	}
	return out, rows.Err()
}

func (s *PostgresAppointmentStore) FindByDossierAndPosition(ctx context.Context, dossierID domain.DossierID, position disease.DosePosition) (*Appointment, error) {
	query := `
		SELECT id, dossier_id, slot_id, site_id, position, start_at, created_at
		FROM appointments WHERE dossier_id = $1 AND position = $2
	`
	row := s.conn(ctx).QueryRowContext(ctx, query, dossierID.String(), string(position))
	appointment, err := ScanAppointment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find appointment by position: %w", err)
	}
	return appointment, nil
}

// ScanAppointment rebuilds an appointment from one row in column order.
// Exported for the snapshot reader.
func ScanAppointment(scan func(...any) error) (*Appointment, error) {
	var appointment Appointment
	var rawID, rawDossierID, rawSlotID, rawSiteID, rawPosition string
	if err := scan(&rawID, &rawDossierID, &rawSlotID, &rawSiteID, &rawPosition,
		&appointment.StartAt, &appointment.CreatedAt); err != nil {
		return nil, err
	}
	id, err := domain.ParseAppointmentID(rawID)
	if err != nil {
		return nil, err
	}
	dossierID, err := domain.ParseDossierID(rawDossierID)
	if err != nil {
		return nil, err
	}
	slotID, err := domain.ParseSlotID(rawSlotID)
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
	appointment.ID = id
	appointment.DossierID = dossierID
	appointment.SlotID = slotID
	appointment.SiteID = siteID
	appointment.Position = position
	return &appointment, nil
}
