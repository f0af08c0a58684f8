package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists audit events to the audit_events table:
//
//	CREATE TABLE audit_events (
//	    id             BIGSERIAL PRIMARY KEY,
//	    ts             TIMESTAMPTZ NOT NULL,
//	    event          TEXT NOT NULL,
//	    patient_ref    TEXT,
//	    recipient_ref  TEXT,
//	    action         TEXT,
//	    purpose_of_use TEXT,
//	    allowed        BOOLEAN,
//	    reason         TEXT,
//	    policy_refs    TEXT[],
//	    external_id    TEXT
//	);
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, event Event) error {
	query := `
        INSERT INTO audit_events (
            ts, event, patient_ref, recipient_ref, action,
            purpose_of_use, allowed, reason, policy_refs, external_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.db.Exec(ctx, query,
		event.Time, event.Kind, event.PatientRef, event.RecipientRef, event.Action,
		event.PurposeOfUse, event.Allowed, event.Reason, event.PolicyRefs, event.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}
