package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithdrawalNotice данные для администраторов о новом запросе вывода
type WithdrawalNotice struct {
	TransactionID int64
	User          *domain.User
	Item          *domain.InventoryItem
	ContactInfo   string
	RequestedAt   time.Time
}

// AdminNotifier реализуется ботом
type AdminNotifier interface {
	NotifyAdminsWithdrawal(ctx context.Context, n WithdrawalNotice)
}

type InventoryService struct {
	db        *pgxpool.Pool
	inventory *repository.InventoryRepository
	users     *repository.UserRepository
	txs       *repository.TransactionRepository
	balance   *BalanceService
	audit     *AuditService
	admins    AdminNotifier
	notify    *NotificationQueue
}

func NewInventoryService(db *pgxpool.Pool, balance *BalanceService, audit *AuditService, notify *NotificationQueue) *InventoryService {
	return &InventoryService{
		db:        db,
		inventory: repository.NewInventoryRepository(db),
		users:     repository.NewUserRepository(db),
		txs:       repository.NewTransactionRepository(db),
		balance:   balance,
		audit:     audit,
		notify:    notify,
	}
}

// SetAdminNotifier подключает бота после его запуска
func (s *InventoryService) SetAdminNotifier(n AdminNotifier) {
	s.admins = n
}

func (s *InventoryService) ListInventory(ctx context.Context, userID int64, f domain.InventoryFilter) ([]domain.InventoryItem, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Rarity != "" && !domain.Rarity(f.Rarity).Valid() {
		return nil, fmt.Errorf("%w: неизвестная редкость %q", domain.ErrValidation, f.Rarity)
	}
	items, err := s.inventory.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list inventory: %v", domain.ErrInternal, err)
	}
	return items, nil
}

func (s *InventoryService) InventoryStats(ctx context.Context, userID int64) (*domain.InventoryStats, error) {
	stats, err := s.inventory.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory stats: %v", domain.ErrInternal, err)
	}
	return stats, nil
}

// Withdrawals замороженные предметы и транзакции вывода
func (s *InventoryService) Withdrawals(ctx context.Context, userID int64) (*domain.WithdrawalHistory, error) {
	items, err := s.inventory.ListWithdrawn(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawn items: %v", domain.ErrInternal, err)
	}
	txs, err := s.txs.ListByUserAndType(ctx, userID, domain.TxItemWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawal txs: %v", domain.ErrInternal, err)
	}
	return &domain.WithdrawalHistory{Items: items, Transactions: txs}, nil
}

// SellItem начисляет item_stars и удаляет предмет. Повторная продажа дает NotFound
func (s *InventoryService) SellItem(ctx context.Context, itemID, userID int64) (*domain.SellResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrInternal, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := s.inventory.LockOwnedTx(ctx, tx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock item: %v", domain.ErrInternal, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: предмет не найден или уже выведен", domain.ErrNotFound)
	}

	var newBalance int64
	if item.ItemStars > 0 {
		newBalance, err = s.balance.CreditEarnedWithTx(ctx, tx, userID, item.ItemStars)
	} else {
		newBalance, err = s.users.LockBalanceTx(ctx, tx, userID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: credit: %v", domain.ErrInternal, err)
	}

	sale := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxItemSale,
		Amount:      starsAmount(item.ItemStars),
		Currency:    domain.CurrencyStars,
		Status:      domain.StatusCompleted,
		Description: "Sold item: " + item.ItemName,
		ExtraData:   map[string]interface{}{"item_id": item.ID, "rarity": item.Rarity},
	}
	if err := s.txs.CreateTx(ctx, tx, sale); err != nil {
		return nil, fmt.Errorf("%w: insert sale: %v", domain.ErrInternal, err)
	}
	if err := s.inventory.DeleteTx(ctx, tx, item.ID); err != nil {
		return nil, fmt.Errorf("%w: delete item: %v", domain.ErrInternal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrInternal, err)
	}

	logger.WithContext(ctx).Info("предмет продан", "user_id", userID, "item_id", item.ID, "stars", item.ItemStars)
	s.audit.LogItemSell(ctx, userID, item)

	return &domain.SellResult{
		Success:     true,
		StarsEarned: item.ItemStars,
		NewBalance:  newBalance,
		Message:     fmt.Sprintf("Предмет '%s' продан за %d звёзд", item.ItemName, item.ItemStars),
	}, nil
}

// RequestWithdrawal замораживает предмет и создает pending транзакцию вывода
func (s *InventoryService) RequestWithdrawal(ctx context.Context, itemID, userID int64, contactInfo string) (*domain.WithdrawResult, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrInternal, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	item, err := s.inventory.LockOwnedTx(ctx, tx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock item: %v", domain.ErrInternal, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: предмет не найден или уже выведен", domain.ErrNotFound)
	}
	if item.ItemStars < domain.MinWithdrawalStars {
		return nil, fmt.Errorf("%w: минимальная стоимость для вывода: %d звёзд", domain.ErrValidation, domain.MinWithdrawalStars)
	}

	if err := s.inventory.MarkWithdrawnTx(ctx, tx, item); err != nil {
		return nil, fmt.Errorf("%w: freeze item: %v", domain.ErrInternal, err)
	}

	withdrawal := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxItemWithdrawal,
		Amount:      starsAmount(item.ItemStars),
		Currency:    domain.CurrencyStars,
		Status:      domain.StatusPending,
		Description: "Withdrawal request: " + item.ItemName,
		ExtraData: map[string]interface{}{
			"item_id":      item.ID,
			"contact_info": contactInfo,
		},
	}
	if err := s.txs.CreateTx(ctx, tx, withdrawal); err != nil {
		return nil, fmt.Errorf("%w: insert withdrawal: %v", domain.ErrInternal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrInternal, err)
	}

	logger.WithContext(ctx).Info("запрос на вывод", "user_id", userID, "item_id", item.ID, "transaction_id", withdrawal.ID)
	s.audit.LogWithdrawRequest(ctx, userID, withdrawal.ID, item)
	s.notifyAdmins(ctx, withdrawal, item, contactInfo)

	return &domain.WithdrawResult{
		Success:       true,
		TransactionID: withdrawal.ID,
		Message: fmt.Sprintf("Запрос на вывод предмета '%s' отправлен. "+
			"Администратор свяжется с вами в течение 24 часов.", item.ItemName),
	}, nil
}

func (s *InventoryService) notifyAdmins(ctx context.Context, t *domain.Transaction, item *domain.InventoryItem, contact string) {
	if s.admins == nil {
		return
	}
	user, err := s.users.GetByID(ctx, t.UserID)
	if err != nil || user == nil {
		logger.WithContext(ctx).Warn("не удалось загрузить пользователя для уведомления", "user_id", t.UserID, "error", err)
		return
	}
	notice := WithdrawalNotice{
		TransactionID: t.ID,
		User:          user,
		Item:          item,
		ContactInfo:   contact,
		RequestedAt:   t.CreatedAt,
	}
	go s.admins.NotifyAdminsWithdrawal(context.WithoutCancel(ctx), notice)
}

// ResolveWithdrawal закрывает pending вывод. При отказе предмет возвращается в инвентарь
func (s *InventoryService) ResolveWithdrawal(ctx context.Context, txID, adminID int64, approve bool) (*domain.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: load tx: %v", domain.ErrInternal, err)
	}
	if t == nil || t.Type != domain.TxItemWithdrawal {
		return nil, fmt.Errorf("%w: вывод %d не найден", domain.ErrNotFound, txID)
	}

	to := domain.StatusFailed
	if approve {
		to = domain.StatusCompleted
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrInternal, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ok, err := s.txs.TransitionTx(ctx, tx, txID, domain.StatusPending, to)
	if err != nil {
		return nil, fmt.Errorf("%w: transition: %v", domain.ErrInternal, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: вывод %d уже обработан", domain.ErrConflict, txID)
	}

	itemID := extraInt(t.ExtraData, "item_id")
	if !approve && itemID > 0 {
		found, err := s.inventory.UnfreezeTx(ctx, tx, itemID, t.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: unfreeze item: %v", domain.ErrInternal, err)
		}
		if !found {
			logger.WithContext(ctx).Warn("предмет отклоненного вывода уже удален", "tx_id", txID, "item_id", itemID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrInternal, err)
	}
	t.Status = to

	s.audit.LogWithdrawResolution(ctx, adminID, t.UserID, txID, approve)

	if user, err := s.users.GetByID(ctx, t.UserID); err == nil && user != nil {
		msg := "❌ Запрос на вывод отклонён. Предмет возвращён в ваш инвентарь."
		if approve {
			msg = "✅ Вывод предмета выполнен. Спасибо, что играете с нами!"
		}
		s.notify.Enqueue(user.TelegramID, msg)
	}
	return t, nil
}

// PendingWithdrawals очередь выводов для администратора
func (s *InventoryService) PendingWithdrawals(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.txs.ListByStatus(ctx, domain.TxItemWithdrawal, domain.StatusPending, limit)
}

// AdminDeleteItem удаляет предмет пользователя без компенсации
func (s *InventoryService) AdminDeleteItem(ctx context.Context, itemID, userID int64) (*domain.InventoryItem, error) {
	item, err := s.inventory.Delete(ctx, itemID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: delete item: %v", domain.ErrInternal, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: предмет не найден", domain.ErrNotFound)
	}
	s.audit.LogAdminAction(ctx, domain.AuditActionAdminDeleteItem, userID, map[string]interface{}{
		"item_id":   item.ID,
		"item_name": item.ItemName,
	})
	return item, nil
}

// числа из jsonb приходят как float64
func extraInt(extra map[string]interface{}, key string) int64 {
	switch v := extra[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
