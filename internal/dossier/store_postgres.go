package dossier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"impfportal/pkg/domain"
	"impfportal/pkg/platform/sentinel"
	"impfportal/pkg/platform/tx"
)

// PostgresStore persists dossiers in PostgreSQL. The nested booking, dose,
// and protection records live in one JSONB document; the columns that back
// constraints and lookups (person, disease, status) are split out. A partial
// unique index on (person_id, disease_id) WHERE status <> 'deleted' enforces
// the one-live-dossier invariant at the database.
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

// dossierDoc is the JSONB payload: everything except the indexed columns.
type dossierDoc struct {
	Booking       BookingRecord      `json:"booking"`
	Doses         []AdministeredDose `json:"doses,omitempty"`
	Entries       []DoseEntry        `json:"entries,omitempty"`
	Protection    json.RawMessage    `json:"protection,omitempty"`
	ExternalProof *ExternalProof     `json:"external_proof,omitempty"`
	Accelerated   bool               `json:"accelerated,omitempty"`
	SelfPayer     bool               `json:"self_payer,omitempty"`
	WaiveReason   string             `json:"waive_reason,omitempty"`
}

func (s *PostgresStore) Create(ctx context.Context, dossier *Dossier) error {
	doc, err := marshalDoc(dossier)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO dossiers (id, person_id, disease_id, status, code_hash, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.conn(ctx).ExecContext(ctx, query,
		dossier.ID.String(), dossier.PersonID.String(), string(dossier.DiseaseID),
		string(dossier.Status), dossier.RegistrationCodeHash, doc,
		dossier.CreatedAt, dossier.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create dossier: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, dossierID domain.DossierID) (*Dossier, error) {
	query := `
		SELECT id, person_id, disease_id, status, code_hash, doc, created_at, updated_at
		FROM dossiers WHERE id = $1
	`
	row := s.conn(ctx).QueryRowContext(ctx, query, dossierID.String())
	dossier, err := ScanDossier(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get dossier: %w", err)
	}
	return dossier, nil
}

func (s *PostgresStore) GetByPersonAndDisease(ctx context.Context, personID domain.PersonID, diseaseID domain.DiseaseID) (*Dossier, error) {
	query := `
		SELECT id, person_id, disease_id, status, code_hash, doc, created_at, updated_at
		FROM dossiers WHERE person_id = $1 AND disease_id = $2 AND status <> 'deleted'
	`
	row := s.conn(ctx).QueryRowContext(ctx, query, personID.String(), string(diseaseID))
	dossier, err := ScanDossier(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get dossier by person and disease: %w", err)
	}
	return dossier, nil
}

func (s *PostgresStore) Update(ctx context.Context, dossier *Dossier) error {
	doc, err := marshalDoc(dossier)
	if err != nil {
		return err
	}
	query := `
		UPDATE dossiers
		SET status = $2, code_hash = $3, doc = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		dossier.ID.String(), string(dossier.Status), dossier.RegistrationCodeHash,
		doc, dossier.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func marshalDoc(dossier *Dossier) ([]byte, error) {
	var protection json.RawMessage
	if dossier.Protection != nil {
		raw, err := json.Marshal(dossier.Protection)
		if err != nil {
			return nil, fmt.Errorf("marshal protection record: %w", err)
		}
		protection = raw
	}
	doc := dossierDoc{
		Booking:       dossier.Booking,
		Doses:         dossier.Doses,
		Entries:       dossier.Entries,
		Protection:    protection,
		ExternalProof: dossier.ExternalProof,
		Accelerated:   dossier.Accelerated,
		SelfPayer:     dossier.SelfPayer,
		WaiveReason:   dossier.WaiveReason,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal dossier doc: %w", err)
	}
	return raw, nil
}

// ScanDossier rebuilds a dossier from one row in column order. Exported for
// the snapshot reader, which queries the same table through pgx.
func ScanDossier(scan func(...any) error) (*Dossier, error) {
	var dossier Dossier
	var rawID, rawPersonID, rawDiseaseID, rawStatus string
	var doc []byte
	if err := scan(&rawID, &rawPersonID, &rawDiseaseID, &rawStatus,
		&dossier.RegistrationCodeHash, &doc, &dossier.CreatedAt, &dossier.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := domain.ParseDossierID(rawID)
	if err != nil {
		return nil, err
	}
	personID, err := domain.ParsePersonID(rawPersonID)
	if err != nil {
		return nil, err
	}
	var parsed dossierDoc
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal dossier doc: %w", err)
	}
	dossier.ID = id
	dossier.PersonID = personID
	dossier.DiseaseID = domain.DiseaseID(rawDiseaseID)
	dossier.Status = Status(rawStatus)
	dossier.Booking = parsed.Booking
	dossier.Doses = parsed.Doses
	dossier.Entries = parsed.Entries
	dossier.ExternalProof = parsed.ExternalProof
	dossier.Accelerated = parsed.Accelerated
	dossier.SelfPayer = parsed.SelfPayer
	dossier.WaiveReason = parsed.WaiveReason
	if len(parsed.Protection) > 0 {
		if err := json.Unmarshal(parsed.Protection, &dossier.Protection); err != nil {
			return nil, fmt.Errorf("unmarshal protection record: %w", err)
		}
	}
	return &dossier, nil
}
