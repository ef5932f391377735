package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"impfportal/pkg/domain"
	"impfportal/pkg/platform/tx"
)

// PostgresStore persists the audit trail in PostgreSQL. Appends join the
// context transaction, which is what makes compliance events fail-closed with
// the mutation they describe.
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

func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	query := `
		INSERT INTO audit_events
			(action, category, person_id, dossier_id, disease_id, actor_id, request_id, device, ip, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = s.conn(ctx).QueryRowContext(ctx, query,
		string(event.Action), string(event.Category),
		event.PersonID.String(), event.DossierID.String(), string(event.DiseaseID),
		event.ActorID, event.RequestID, event.Device, event.IP,
		detail, event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDossier(ctx context.Context, dossierID domain.DossierID) ([]*Event, error) {
	query := `
		SELECT id, action, category, person_id, dossier_id, disease_id,
		       actor_id, request_id, device, ip, detail, occurred_at, relayed_at
		FROM audit_events WHERE dossier_id = $1 ORDER BY id
	`
	return s.queryEvents(ctx, query, dossierID.String())
}

func (s *PostgresStore) ListUnrelayed(ctx context.Context, limit int) ([]*Event, error) {
	query := `
		SELECT id, action, category, person_id, dossier_id, disease_id,
		       actor_id, request_id, device, ip, detail, occurred_at, relayed_at
		FROM audit_events WHERE relayed_at IS NULL ORDER BY id LIMIT $1
	`
	return s.queryEvents(ctx, query, limit)
}

func (s *PostgresStore) MarkRelayed(ctx context.Context, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query := `UPDATE audit_events SET relayed_at = now() WHERE id = ANY($1) AND relayed_at IS NULL`
	if _, err := s.conn(ctx).ExecContext(ctx, query, pq.Array(eventIDs)); err != nil {
		return fmt.Errorf("mark audit events relayed: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryEvents(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var event Event
		var rawPersonID, rawDossierID, rawDiseaseID string
		var detail []byte
		var relayedAt sql.NullTime
		err := rows.Scan(&event.ID, &event.Action, &event.Category,
			&rawPersonID, &rawDossierID, &rawDiseaseID,
			&event.ActorID, &event.RequestID, &event.Device, &event.IP,
			&detail, &event.Timestamp, &relayedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		personID, err := domain.ParsePersonID(rawPersonID)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		dossierID, err := domain.ParseDossierID(rawDossierID)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.PersonID = personID
		event.DossierID = dossierID
		event.DiseaseID = domain.DiseaseID(rawDiseaseID)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		if relayedAt.Valid {
			event.RelayedAt = &relayedAt.Time
		}
		out = append(out, &event)
	}
	return out, rows.Err()
}
