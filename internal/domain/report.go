package domain

import (
	"time"

	"github.com/google/uuid"
)

// Report statuses. Reports are append-only; the moderation workflow moves
// them from pending to resolved or rejected.
const (
	ReportStatusPending  = "PENDING"
	ReportStatusResolved = "RESOLVED"
	ReportStatusRejected = "REJECTED"
)

// MessageReport represents the message_reports table.
type MessageReport struct {
	ID         uuid.UUID `gorm:"primaryKey"`
	MessageID  uuid.UUID `gorm:"index"`
	ReporterID uuid.UUID
	Reason     string
	Status     string
	CreatedAt  time.Time
}

func (MessageReport) TableName() string {
	return "message_reports"
}
