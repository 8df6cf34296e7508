package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careclaim/claimledger/internal/domain"
)

// Postgres implements Gateway on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{db: pool}, nil
}

// NewPostgresFromPool wraps an existing pool, used by cmd/api which owns the
// pool's lifecycle.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) Close() {
	p.db.Close()
}

const claimColumns = `id, owner_id, policy_id,
	incident_type, incident_date, incident_details, incident_location, amount_claimed,
	status,
	anchor_claim_key, anchor_fingerprint, anchor_tx_ref,
	ack_reference_number, ack_file_name, ack_file_size, ack_file_checksum, ack_recorded_at,
	created_at, updated_at`

func (p *Postgres) CreateClaim(ctx context.Context, c *domain.Claim) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO claims (id, owner_id, policy_id,
			incident_type, incident_date, incident_details, incident_location, amount_claimed,
			status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.OwnerID, c.PolicyID,
		c.Incident.Type, c.Incident.Date, c.Incident.Details, c.Incident.Location, c.Incident.AmountClaimed,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("claim insert failed: %w", err)
	}
	return nil
}

func (p *Postgres) GetClaim(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	row := p.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim query failed: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListClaims(ctx context.Context, ownerID uuid.UUID) ([]domain.Claim, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("claim list query failed: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("claim scan failed: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

func (p *Postgres) UpdateDraft(ctx context.Context, c *domain.Claim, expectedUpdatedAt time.Time) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE claims SET
			incident_type = $1, incident_date = $2, incident_details = $3,
			incident_location = $4, amount_claimed = $5, updated_at = $6
		 WHERE id = $7 AND updated_at = $8`,
		c.Incident.Type, c.Incident.Date, c.Incident.Details,
		c.Incident.Location, c.Incident.AmountClaimed, c.UpdatedAt,
		c.ID, expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("draft update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missOrStale(ctx, c.ID)
	}
	return nil
}

func (p *Postgres) ApplyTransition(ctx context.Context, c *domain.Claim, expectedUpdatedAt time.Time, entry *domain.TimelineEntry) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		ackRef, ackFileName, ackFileChecksum *string
		ackFileSize                          *int64
		ackRecordedAt                        *time.Time
	)
	if c.Ack != nil {
		ackRef = &c.Ack.ReferenceNumber
		ackRecordedAt = &c.Ack.RecordedAt
		if c.Ack.File != nil {
			ackFileName = &c.Ack.File.FileName
			ackFileSize = &c.Ack.File.Size
			ackFileChecksum = &c.Ack.File.Checksum
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE claims SET
			status = $1,
			anchor_claim_key = $2, anchor_fingerprint = $3, anchor_tx_ref = $4,
			ack_reference_number = $5, ack_file_name = $6, ack_file_size = $7,
			ack_file_checksum = $8, ack_recorded_at = $9,
			updated_at = $10
		 WHERE id = $11 AND updated_at = $12`,
		c.Status,
		c.Anchor.ClaimKey, c.Anchor.Fingerprint, c.Anchor.TxRef,
		ackRef, ackFileName, ackFileSize, ackFileChecksum, ackRecordedAt,
		c.UpdatedAt,
		c.ID, expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missOrStale(ctx, c.ID)
	}

	if err := insertTimeline(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (p *Postgres) CreateDocument(ctx context.Context, doc *domain.Document, entry *domain.TimelineEntry) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, claim_id, doc_type, file_name, file_size, checksum, uploaded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.ClaimID, doc.Type, doc.FileName, doc.Size, doc.Checksum, doc.UploadedBy, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("document insert failed: %w", err)
	}

	if err := insertTimeline(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (p *Postgres) ListTimeline(ctx context.Context, claimID uuid.UUID) ([]domain.TimelineEntry, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, claim_id, kind, description, actor, ts, new_status, tx_ref, document_id
		 FROM timeline_entries WHERE claim_id = $1 ORDER BY ts, seq`, claimID)
	if err != nil {
		return nil, fmt.Errorf("timeline query failed: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var (
			e         domain.TimelineEntry
			newStatus *string
			txRef     *string
		)
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.Kind, &e.Description, &e.Actor,
			&e.Timestamp, &newStatus, &txRef, &e.DocumentID); err != nil {
			return nil, fmt.Errorf("timeline scan failed: %w", err)
		}
		if newStatus != nil {
			e.NewStatus = domain.ClaimStatus(*newStatus)
		}
		if txRef != nil {
			e.TxRef = *txRef
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertTimeline(ctx context.Context, tx pgx.Tx, e *domain.TimelineEntry) error {
	var newStatus, txRef *string
	if e.NewStatus != "" {
		s := string(e.NewStatus)
		newStatus = &s
	}
	if e.TxRef != "" {
		r := e.TxRef
		txRef = &r
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO timeline_entries (id, claim_id, kind, description, actor, ts, new_status, tx_ref, document_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ClaimID, e.Kind, e.Description, e.Actor, e.Timestamp, newStatus, txRef, e.DocumentID,
	)
	if err != nil {
		return fmt.Errorf("timeline insert failed: %w", err)
	}
	return nil
}

// missOrStale disambiguates a zero-row optimistic update.
func (p *Postgres) missOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("existence check failed: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleUpdate
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var (
		c                                    domain.Claim
		anchorKey, anchorFP, anchorTx        *string
		ackRef, ackFileName, ackFileChecksum *string
		ackFileSize                          *int64
		ackRecordedAt                        *time.Time
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.PolicyID,
		&c.Incident.Type, &c.Incident.Date, &c.Incident.Details, &c.Incident.Location, &c.Incident.AmountClaimed,
		&c.Status,
		&anchorKey, &anchorFP, &anchorTx,
		&ackRef, &ackFileName, &ackFileSize, &ackFileChecksum, &ackRecordedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if anchorKey != nil {
		c.Anchor = &domain.Anchor{ClaimKey: *anchorKey}
		if anchorFP != nil {
			c.Anchor.Fingerprint = *anchorFP
		}
		if anchorTx != nil {
			c.Anchor.TxRef = *anchorTx
		}
	}
	if ackRef != nil {
		c.Ack = &domain.Acknowledgement{ReferenceNumber: *ackRef}
		if ackRecordedAt != nil {
			c.Ack.RecordedAt = *ackRecordedAt
		}
		if ackFileName != nil {
			c.Ack.File = &domain.FileMeta{FileName: *ackFileName}
			if ackFileSize != nil {
				c.Ack.File.Size = *ackFileSize
			}
			if ackFileChecksum != nil {
				c.Ack.File.Checksum = *ackFileChecksum
			}
		}
	}
	return &c, nil
}
