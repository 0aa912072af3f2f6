package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AdminService статистика платформы для админ-бота
type AdminService struct {
	db    *pgxpool.Pool
	users *repository.UserRepository
	txs   *repository.TransactionRepository
	now   func() time.Time
}

func NewAdminService(db *pgxpool.Pool) *AdminService {
	return &AdminService{
		db:    db,
		users: repository.NewUserRepository(db),
		txs:   repository.NewTransactionRepository(db),
		now:   time.Now,
	}
}

type PlatformStats struct {
	TotalUsers         int64           `json:"total_users"`
	ActiveUsersToday   int64           `json:"active_users_today"`
	NewUsersToday      int64           `json:"new_users_today"`
	CasesOpenedTotal   int64           `json:"cases_opened_total"`
	CasesOpenedToday   int64           `json:"cases_opened_today"`
	StarsInCirculation int64           `json:"stars_in_circulation"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	DepositedStars     int64           `json:"deposited_stars"`
	DepositedTON       decimal.Decimal `json:"deposited_ton"`
	// разбивка транзакций за сутки
	Today []repository.StatusSummary `json:"today"`
}

func (s *AdminService) Stats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	today := s.now().Truncate(24 * time.Hour)

	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE last_active >= $1),
			COUNT(*) FILTER (WHERE created_at >= $1),
			COALESCE(SUM(total_cases_opened), 0)::bigint,
			COALESCE(SUM(balance_stars), 0)::bigint
		FROM users
	`, today).Scan(&stats.TotalUsers, &stats.ActiveUsersToday, &stats.NewUsersToday,
		&stats.CasesOpenedTotal, &stats.StarsInCirculation)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE type = 'case_purchase' AND created_at >= $1),
			COUNT(*) FILTER (WHERE type = 'item_withdrawal' AND status = 'pending'),
			COALESCE(SUM(amount) FILTER (WHERE type = 'deposit_stars' AND status = 'completed'), 0)::bigint,
			COALESCE(SUM(amount) FILTER (WHERE type = 'deposit_ton' AND status = 'completed'), 0)
		FROM transactions
	`, today).Scan(&stats.CasesOpenedToday, &stats.PendingWithdrawals, &stats.DepositedStars, &stats.DepositedTON)
	if err != nil {
		return nil, fmt.Errorf("tx stats: %w", err)
	}

	stats.Today, err = s.txs.Summary(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return stats, nil
}

// FindUser ищет по telegram id, внутреннему id через # или username
func (s *AdminService) FindUser(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: пустой идентификатор", domain.ErrValidation)
	}

	var (
		u   *domain.User
		err error
	)
	switch {
	case strings.HasPrefix(identifier, "#"):
		id, perr := strconv.ParseInt(identifier[1:], 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("%w: неверный id", domain.ErrValidation)
		}
		u, err = s.users.GetByID(ctx, id)
	default:
		if tgID, perr := strconv.ParseInt(identifier, 10, 64); perr == nil {
			u, err = s.users.GetByTelegramID(ctx, tgID)
		} else {
			u, err = s.users.GetByUsername(ctx, strings.TrimPrefix(identifier, "@"))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %v", domain.ErrInternal, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: пользователь %s не найден", domain.ErrNotFound, identifier)
	}
	return u, nil
}

// TopUsers лучшие по открытым кейсам
func (s *AdminService) TopUsers(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.users.Top(ctx, limit)
}
