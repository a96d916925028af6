package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionInitiate AuditAction = "TRANSFER_INITIATE"
	AuditActionSettle   AuditAction = "TRANSFER_SETTLE"
	AuditActionRegister AuditAction = "WALLET_REGISTER"
	AuditActionTopup    AuditAction = "WALLET_TOPUP"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Address      string      `json:"address,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
