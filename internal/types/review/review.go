package review

import (
	"time"

	"github.com/google/uuid"
)

// Review is a single study event. The condition evaluator only ever reads
// these; they are written by the (out of scope) learning flow.
type Review struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Category   string    `json:"category" db:"category"`
	Correct    bool      `json:"correct" db:"correct"`
	ReviewedAt time.Time `json:"reviewed_at" db:"reviewed_at"`
}
