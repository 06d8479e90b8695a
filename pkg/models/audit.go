package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeError   = "ERROR"
)

// Bounds applied to audit fields before they are persisted.
const (
	MaxIdentifierBytes = 255
	MaxMessageBytes    = 1000
)

// RowAuditEntry records the outcome of one processed row. Entries are
// append-only: the database rejects updates and deletes.
type RowAuditEntry struct {
	ID         int64           `db:"id"         json:"id"`
	JobID      uuid.UUID       `db:"job_id"     json:"job_id"`
	RowNumber  int             `db:"row_number" json:"row_number"`
	Identifier string          `db:"identifier" json:"identifier"`
	Action     OperationKind   `db:"action"     json:"action"`
	Status     string          `db:"status"     json:"status"`
	Message    string          `db:"message"    json:"message"`
	Details    json.RawMessage `db:"details"    json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
