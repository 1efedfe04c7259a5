package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records account and friendship actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:64" json:"traceId"`
	AccountID *int64         `gorm:"index:idx_audit_account" json:"accountId"`
	TargetID  *int64         `json:"targetId"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Detail    datatypes.JSON `json:"detail"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"createdAt"`
}
