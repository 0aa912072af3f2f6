package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/game"
	"crazygift/internal/logger"
	"crazygift/internal/metrics"
	"crazygift/internal/repository"
	"crazygift/internal/ws"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DropPublisher получает событие после успешного открытия
type DropPublisher interface {
	Publish(ev ws.DropEvent)
}

type CaseService struct {
	db        *pgxpool.Pool
	cases     *repository.CaseRepository
	users     *repository.UserRepository
	inventory *repository.InventoryRepository
	txs       *repository.TransactionRepository
	balance   *BalanceService
	selector  *game.Selector
	audit     *AuditService
	drops     DropPublisher
}

func NewCaseService(db *pgxpool.Pool, balance *BalanceService, audit *AuditService, drops DropPublisher) *CaseService {
	return &CaseService{
		db:        db,
		cases:     repository.NewCaseRepository(db),
		users:     repository.NewUserRepository(db),
		inventory: repository.NewInventoryRepository(db),
		txs:       repository.NewTransactionRepository(db),
		balance:   balance,
		selector:  game.NewSelector(),
		audit:     audit,
		drops:     drops,
	}
}

// SetSelector подменяет источник случайности в тестах
func (s *CaseService) SetSelector(sel *game.Selector) {
	s.selector = sel
}

func (s *CaseService) ListCases(ctx context.Context, category string, activeOnly bool) ([]domain.Case, error) {
	cases, err := s.cases.List(ctx, category, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: list cases: %v", domain.ErrInternal, err)
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	return cases, nil
}

func (s *CaseService) Categories(ctx context.Context) ([]domain.CaseCategory, error) {
	cats, err := s.cases.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: categories: %v", domain.ErrInternal, err)
	}
	if cats == nil {
		cats = []domain.CaseCategory{}
	}
	return cats, nil
}

func (s *CaseService) Stats(ctx context.Context) (*domain.CaseStats, error) {
	stats, err := s.cases.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: case stats: %v", domain.ErrInternal, err)
	}
	return stats, nil
}

// GetCase возвращает кейс вместе с разобранной таблицей призов
func (s *CaseService) GetCase(ctx context.Context, caseID int64) (*domain.CaseDetail, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: get case: %v", domain.ErrInternal, err)
	}
	// неактивный кейс для клиента не существует, как и в OpenCase
	if c == nil || !c.Active {
		return nil, fmt.Errorf("%w: кейс не найден или не активен", domain.ErrNotFound)
	}

	items, err := game.ParsePrizeTable([]byte(c.Items))
	if err != nil {
		logger.WithContext(ctx).Error("битая таблица призов", "case_id", c.ID, "error", err)
		return nil, fmt.Errorf("%w: invalid case data", domain.ErrInternal)
	}
	return &domain.CaseDetail{Case: *c, Items: items}, nil
}

// OpenCase списывает цену, выбирает приз и выдает предмет одной транзакцией.
// Нехватка звезд возвращается как OpenResult с Success=false, без ошибки и без изменений
func (s *CaseService) OpenCase(ctx context.Context, caseID, userID int64) (*domain.OpenResult, error) {
	log := logger.WithContext(ctx).With("case_id", caseID, "user_id", userID)
	started := time.Now()
	defer func() { metrics.CaseOpenDuration.Observe(time.Since(started).Seconds()) }()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: begin: %v", domain.ErrInternal, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := s.cases.GetActiveTx(ctx, tx, caseID)
	if err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: load case: %v", domain.ErrInternal, err)
	}
	if c == nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultNotFound).Inc()
		return nil, fmt.Errorf("%w: кейс не найден или не активен", domain.ErrNotFound)
	}

	balance, err := s.users.LockBalanceTx(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.CaseOpens.WithLabelValues(metrics.ResultNotFound).Inc()
			return nil, fmt.Errorf("%w: пользователь не найден", domain.ErrNotFound)
		}
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: lock user: %v", domain.ErrInternal, err)
	}

	if balance < c.PriceStars {
		metrics.CaseOpens.WithLabelValues(metrics.ResultInsufficient).Inc()
		return insufficientResult(c.PriceStars, balance), nil
	}

	prizes, err := game.ParsePrizeTable([]byte(c.Items))
	if err != nil {
		log.Error("битая таблица призов", "error", err)
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: invalid case data", domain.ErrInternal)
	}

	prize, err := s.selector.Select(prizes)
	if err != nil {
		log.Error("не удалось выбрать приз", "error", err)
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: failed to select item from case", domain.ErrInternal)
	}

	newBalance, err := s.balance.ChargeCaseWithTx(ctx, tx, userID, c.PriceStars)
	if err != nil {
		// строка заблокирована выше, сюда попадаем только при сбое базы
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.CaseOpens.WithLabelValues(metrics.ResultInsufficient).Inc()
			return insufficientResult(c.PriceStars, balance), nil
		}
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: charge: %v", domain.ErrInternal, err)
	}

	cid := c.ID
	item := &domain.InventoryItem{
		UserID:    userID,
		ItemName:  prize.Name,
		ItemValue: prize.Value,
		ItemStars: prize.Stars,
		Rarity:    prize.Rarity,
		ImageURL:  prize.Image,
		CaseName:  c.Name,
		CaseID:    &cid,
	}
	if err := s.inventory.CreateTx(ctx, tx, item); err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: insert item: %v", domain.ErrInternal, err)
	}

	purchase := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxCasePurchase,
		Amount:      starsAmount(c.PriceStars),
		Currency:    domain.CurrencyStars,
		Status:      domain.StatusCompleted,
		Description: "Opened case: " + c.Name,
		ExtraData: map[string]interface{}{
			"case_id": c.ID,
			"item_id": item.ID,
		},
	}
	if err := s.txs.CreateTx(ctx, tx, purchase); err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: insert purchase: %v", domain.ErrInternal, err)
	}

	if err := s.cases.IncrementOpenedTx(ctx, tx, c.ID); err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: case counter: %v", domain.ErrInternal, err)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.CaseOpens.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrInternal, err)
	}

	metrics.CaseOpens.WithLabelValues(metrics.ResultOK).Inc()
	log.Info("кейс открыт", "item", item.ItemName, "rarity", item.Rarity, "new_balance", newBalance)

	s.afterOpen(ctx, c, item)

	return &domain.OpenResult{
		Success:    true,
		Item:       item,
		NewBalance: newBalance,
		Message:    fmt.Sprintf("Поздравляем! Вы получили: %s", item.ItemName),
	}, nil
}

func insufficientResult(price, balance int64) *domain.OpenResult {
	return &domain.OpenResult{
		Success:    false,
		NewBalance: balance,
		Message:    fmt.Sprintf("Недостаточно звёзд. Нужно: %d, у вас: %d", price, balance),
	}
}

// лента и аудит после коммита, их сбои не влияют на ответ
func (s *CaseService) afterOpen(ctx context.Context, c *domain.Case, item *domain.InventoryItem) {
	s.audit.LogCaseOpen(ctx, item.UserID, c.ID, c.PriceStars, item)

	if s.drops == nil {
		return
	}
	name := "Игрок"
	if u, err := s.users.GetByID(ctx, item.UserID); err == nil && u != nil {
		name = publicName(u)
	}
	s.drops.Publish(ws.DropEvent{
		User:     name,
		ItemName: item.ItemName,
		Rarity:   string(item.Rarity),
		Stars:    item.ItemStars,
		CaseName: c.Name,
		At:       item.CreatedAt,
	})
}

// имя для публичной ленты без фамилии
func publicName(u *domain.User) string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return "Игрок"
}
