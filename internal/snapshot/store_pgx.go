package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"impfportal/internal/booking"
	"impfportal/internal/dossier"
	"impfportal/internal/slots"
	"impfportal/pkg/domain"
	dErrors "impfportal/pkg/domain-errors"
)

// PgxLoader reads all parts of a snapshot inside one repeatable-read,
// read-only transaction, so the dossier, its appointments, and the site come
// from a single consistent point even while bookings commit concurrently.
type PgxLoader struct {
	pool *pgxpool.Pool
}

func NewPgxLoader(pool *pgxpool.Pool) *PgxLoader {
	return &PgxLoader{pool: pool}
}

func (l *PgxLoader) Load(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Snapshot, error) {
	return l.inReadTx(ctx, func(tx pgx.Tx) (*dossier.Dossier, error) {
		row := tx.QueryRow(ctx, `
			SELECT id, person_id, disease_id, status, code_hash, doc, created_at, updated_at
			FROM dossiers WHERE person_id = $1 AND disease_id = $2 AND status <> 'deleted'
		`, personID.String(), string(diseaseID))
		return dossier.ScanDossier(row.Scan)
	})
}

func (l *PgxLoader) LoadByDossier(ctx context.Context, dossierID domain.DossierID) (*Snapshot, error) {
	return l.inReadTx(ctx, func(tx pgx.Tx) (*dossier.Dossier, error) {
		row := tx.QueryRow(ctx, `
			SELECT id, person_id, disease_id, status, code_hash, doc, created_at, updated_at
			FROM dossiers WHERE id = $1
		`, dossierID.String())
		return dossier.ScanDossier(row.Scan)
	})
}

func (l *PgxLoader) inReadTx(ctx context.Context, loadDossier func(pgx.Tx) (*dossier.Dossier, error)) (*Snapshot, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := loadDossier(tx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		return nil, fmt.Errorf("load dossier: %w", err)
	}

	snap := &Snapshot{Dossier: d}
	if snap.Appointments, err = l.loadAppointments(ctx, tx, d.ID); err != nil {
		return nil, err
	}
	if siteID := d.Booking.SiteID; siteID != nil {
		if snap.Site, err = l.loadSite(ctx, tx, *siteID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return snap, nil
}

func (l *PgxLoader) loadAppointments(ctx context.Context, tx pgx.Tx, dossierID domain.DossierID) ([]*booking.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, dossier_id, slot_id, site_id, position, start_at, created_at
		FROM appointments WHERE dossier_id = $1 ORDER BY start_at
	`, dossierID.String())
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	defer rows.Close()

	var out []*booking.Appointment
	for rows.Next() {
		appointment, err := booking.ScanAppointment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, appointment)
	}
	return out, rows.Err()
}

func (l *PgxLoader) loadSite(ctx context.Context, tx pgx.Tx, siteID domain.SiteID) (*slots.Site, error) {
	var site slots.Site
	var rawID string
	err := tx.QueryRow(ctx, `
		SELECT id, name, address, managed, created_at FROM sites WHERE id = $1
	`, siteID.String()).Scan(&rawID, &site.Name, &site.Address, &site.Managed, &site.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load site: %w", err)
	}
	parsed, err := domain.ParseSiteID(rawID)
	if err != nil {
		return nil, fmt.Errorf("load site: %w", err)
	}
	site.ID = parsed
	return &site, nil
}
