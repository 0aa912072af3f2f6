package domain

import "time"

// Журнал важных действий пользователя
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	IP        string                 `db:"ip" json:"ip,omitempty"`
	UserAgent string                 `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

const (
	AuditCategoryAuth       = "auth"
	AuditCategoryCase       = "case"
	AuditCategoryInventory  = "inventory"
	AuditCategoryPayment    = "payment"
	AuditCategoryWithdrawal = "withdrawal"
	AuditCategoryAdmin      = "admin"
)

const (
	AuditActionLogin    = "login"
	AuditActionRegister = "register"

	AuditActionCaseOpen = "case_open"
	AuditActionItemSell = "item_sell"

	AuditActionDeposit         = "deposit"
	AuditActionDepositFailed   = "deposit_failed"
	AuditActionWithdrawRequest = "withdraw_request"
	AuditActionWithdrawApprove = "withdraw_approve"
	AuditActionWithdrawReject  = "withdraw_reject"

	AuditActionAdminDeleteItem = "admin_delete_item"
)
