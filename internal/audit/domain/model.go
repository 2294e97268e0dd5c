package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Actions recorded by the reconciliation pipeline.
const (
	ActionReconcileFailed      = "transaction.reconcile_failed"
	ActionTransactionRefunded  = "transaction.refunded"
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionCanceled = "subscription.cancel_requested"
	ActionCampaignCreated      = "campaign.created"
)

const (
	ActorSystem = "system"
	ActorAPIKey = "api_key"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"column:actor_type;not null" json:"actor_type"`
	ActorID    *string           `gorm:"column:actor_id" json:"actor_id,omitempty"`
	Action     string            `gorm:"column:action;not null;index" json:"action"`
	TargetType string            `gorm:"column:target_type;not null" json:"target_type"`
	TargetID   *string           `gorm:"column:target_id;index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
