package service

import (
	"context"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// журнал аудита. Ошибки записи только логируются
type AuditService struct {
	repo *repository.AuditRepository
}

func NewAuditService(db *pgxpool.Pool) *AuditService {
	return &AuditService{repo: repository.NewAuditRepository(db)}
}

func (s *AuditService) Log(ctx context.Context, userID int64, action, category string, details map[string]interface{}) {
	if s == nil {
		return
	}
	entry := &domain.AuditLog{
		UserID:   userID,
		Action:   action,
		Category: category,
		Details:  details,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		logger.WithContext(ctx).Error("не удалось создать запись аудита", "error", err, "action", action, "user_id", userID)
	}
}

// LogWithTx пишет запись в той же транзакции, что и изменение
func (s *AuditService) LogWithTx(ctx context.Context, tx pgx.Tx, userID int64, action, category string, details map[string]interface{}) error {
	if s == nil {
		return nil
	}
	return s.repo.CreateWithTx(ctx, tx, &domain.AuditLog{
		UserID:   userID,
		Action:   action,
		Category: category,
		Details:  details,
	})
}

func (s *AuditService) LogLogin(ctx context.Context, userID int64, ip, userAgent string) {
	if s == nil {
		return
	}
	entry := &domain.AuditLog{
		UserID:    userID,
		Action:    domain.AuditActionLogin,
		Category:  domain.AuditCategoryAuth,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		logger.WithContext(ctx).Error("не удалось создать запись аудита", "error", err, "action", entry.Action, "user_id", userID)
	}
}

func (s *AuditService) LogCaseOpen(ctx context.Context, userID, caseID int64, price int64, item *domain.InventoryItem) {
	s.Log(ctx, userID, domain.AuditActionCaseOpen, domain.AuditCategoryCase, map[string]interface{}{
		"case_id":    caseID,
		"price":      price,
		"item_id":    item.ID,
		"item_name":  item.ItemName,
		"item_stars": item.ItemStars,
		"rarity":     item.Rarity,
	})
}

func (s *AuditService) LogItemSell(ctx context.Context, userID int64, item *domain.InventoryItem) {
	s.Log(ctx, userID, domain.AuditActionItemSell, domain.AuditCategoryInventory, map[string]interface{}{
		"item_id":   item.ID,
		"item_name": item.ItemName,
		"stars":     item.ItemStars,
	})
}

func (s *AuditService) LogDeposit(ctx context.Context, userID int64, rail domain.PaymentRail, txID int64, amount decimal.Decimal, credited int64, success bool) {
	action := domain.AuditActionDeposit
	if !success {
		action = domain.AuditActionDepositFailed
	}
	s.Log(ctx, userID, action, domain.AuditCategoryPayment, map[string]interface{}{
		"rail":           rail,
		"transaction_id": txID,
		"amount":         amount.String(),
		"credited_stars": credited,
	})
}

func (s *AuditService) LogWithdrawRequest(ctx context.Context, userID, txID int64, item *domain.InventoryItem) {
	s.Log(ctx, userID, domain.AuditActionWithdrawRequest, domain.AuditCategoryWithdrawal, map[string]interface{}{
		"transaction_id": txID,
		"item_id":        item.ID,
		"item_stars":     item.ItemStars,
	})
}

// решение администратора по выводу
func (s *AuditService) LogWithdrawResolution(ctx context.Context, adminID, userID, txID int64, approved bool) {
	action := domain.AuditActionWithdrawReject
	if approved {
		action = domain.AuditActionWithdrawApprove
	}
	s.Log(ctx, userID, action, domain.AuditCategoryWithdrawal, map[string]interface{}{
		"transaction_id": txID,
		"admin_id":       adminID,
	})
}

func (s *AuditService) LogAdminAction(ctx context.Context, action string, targetUserID int64, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["target_user_id"] = targetUserID
	s.Log(ctx, targetUserID, action, domain.AuditCategoryAdmin, details)
}

func (s *AuditService) GetUserAuditLogs(ctx context.Context, userID int64, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetByUserID(ctx, userID, limit)
}

// последние записи, category пустая значит все
func (s *AuditService) GetRecentLogs(ctx context.Context, category string, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetRecent(ctx, category, limit)
}
