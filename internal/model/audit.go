package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateOrder      = "CREATE_ORDER"
	ActionCancelOrder      = "CANCEL_ORDER"
	ActionAddPayment       = "ADD_PAYMENT"
	ActionSettlePayment    = "SETTLE_PAYMENT"
	ActionFailPayment      = "FAIL_PAYMENT"
	ActionReplacePayment   = "REPLACE_PAYMENT"
	ActionSetTabDiscount   = "SET_TAB_DISCOUNT"
	ActionRemoveTab        = "REMOVE_TAB"
	ActionConcludeTab      = "CONCLUDE_TAB"
	ActionOpenPosSession   = "OPEN_POS_SESSION"
	ActionClosePosSession  = "CLOSE_POS_SESSION"
	ActionGenerateXTicket  = "GENERATE_X_TICKET"
	ActionRollbackFreeUnit = "ROLLBACK_FREE_UNITS"
	ActionCreateProduct    = "CREATE_PRODUCT"
	ActionCreateVatProfile = "CREATE_VAT_PROFILE"
)

// AuditLog tracks Who, What, and When for settlement changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for processor callbacks and the sweeper
	Actor      string     `gorm:"type:varchar(100)" json:"actor"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
