package service

import (
	"context"
	"fmt"
	"strings"

	"crazygift/internal/domain"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// валидные фильтры истории
var (
	historyTypes = map[domain.TransactionType]bool{
		domain.TxDepositTON: true, domain.TxDepositStars: true, domain.TxCasePurchase: true,
		domain.TxItemSale: true, domain.TxItemWithdrawal: true, domain.TxReferralBonus: true,
	}
	historyStatuses = map[domain.TransactionStatus]bool{
		domain.StatusPending: true, domain.StatusProcessing: true, domain.StatusCompleted: true,
		domain.StatusFailed: true, domain.StatusCancelled: true,
	}
)

type ReferralsPage struct {
	ReferralCode   string                `json:"referral_code"`
	ReferralLink   string                `json:"referral_link"`
	TotalReferrals int64                 `json:"total_referrals"`
	TotalEarned    int64                 `json:"total_earned"`
	BonusPerFriend int64                 `json:"bonus_per_friend"`
	Referrals      []domain.ReferralInfo `json:"referrals"`
}

type UserService struct {
	users       *repository.UserRepository
	inventory   *repository.InventoryRepository
	txs         *repository.TransactionRepository
	referrals   *repository.ReferralRepository
	botUsername string
}

func NewUserService(db *pgxpool.Pool, botUsername string) *UserService {
	return &UserService{
		users:       repository.NewUserRepository(db),
		inventory:   repository.NewInventoryRepository(db),
		txs:         repository.NewTransactionRepository(db),
		referrals:   repository.NewReferralRepository(db),
		botUsername: botUsername,
	}
}

func (s *UserService) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", domain.ErrInternal, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: пользователь не найден", domain.ErrNotFound)
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd domain.ProfileUpdate) (*domain.User, error) {
	for _, field := range []*string{upd.Username, upd.FirstName, upd.LastName} {
		if field == nil {
			continue
		}
		*field = strings.TrimSpace(*field)
		if len([]rune(*field)) > 64 {
			return nil, fmt.Errorf("%w: слишком длинное значение", domain.ErrValidation)
		}
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, fmt.Errorf("%w: update profile: %v", domain.ErrInternal, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: пользователь не найден", domain.ErrNotFound)
	}
	return u, nil
}

func (s *UserService) Stats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	byRarity, err := s.inventory.CountByRarity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory counts: %v", domain.ErrInternal, err)
	}
	totals, err := s.txs.UserTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: tx totals: %v", domain.ErrInternal, err)
	}
	refs, err := s.users.CountReferrals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: referrals: %v", domain.ErrInternal, err)
	}

	return &domain.UserStats{
		UserID:           u.ID,
		TotalCasesOpened: u.TotalCasesOpened,
		TotalSpentStars:  u.TotalSpentStars,
		TotalEarnedStars: u.TotalEarnedStars,
		Inventory:        byRarity,
		TotalPurchases:   totals.Purchases,
		TotalSpent:       totals.TotalSpent,
		TotalEarned:      totals.TotalEarned,
		ReferralsCount:   refs,
		MemberSince:      u.CreatedAt,
		LastActive:       u.LastActive,
	}, nil
}

// History страница транзакций с фильтрами. limit по умолчанию 50, не больше 100
func (s *UserService) History(ctx context.Context, userID int64, f domain.TransactionFilter) (*domain.HistoryPage, error) {
	if f.Type != "" && !historyTypes[domain.TransactionType(f.Type)] {
		return nil, fmt.Errorf("%w: неизвестный тип транзакции", domain.ErrValidation)
	}
	if f.Status != "" && !historyStatuses[domain.TransactionStatus(f.Status)] {
		return nil, fmt.Errorf("%w: неизвестный статус", domain.ErrValidation)
	}
	if f.Currency != "" && f.Currency != string(domain.CurrencyTON) && f.Currency != string(domain.CurrencyStars) {
		return nil, fmt.Errorf("%w: неизвестная валюта", domain.ErrValidation)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, total, err := s.txs.ListByUser(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", domain.ErrInternal, err)
	}
	if list == nil {
		list = []domain.Transaction{}
	}
	return &domain.HistoryPage{
		Transactions: list,
		Total:        total,
		HasMore:      int64(f.Offset+len(list)) < total,
	}, nil
}

func (s *UserService) Referrals(ctx context.Context, userID int64) (*ReferralsPage, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	list, err := s.users.ListReferrals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list referrals: %v", domain.ErrInternal, err)
	}
	stats, err := s.referrals.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: referral stats: %v", domain.ErrInternal, err)
	}
	if list == nil {
		list = []domain.ReferralInfo{}
	}
	// активным считаем того, кто открыл хотя бы один кейс
	for i := range list {
		list[i].IsActive = list[i].CasesOpened > 0
	}

	return &ReferralsPage{
		ReferralCode:   u.ReferralCode,
		ReferralLink:   ReferralLink(s.botUsername, u.ReferralCode),
		TotalReferrals: stats.TotalReferrals,
		TotalEarned:    stats.TotalEarned,
		BonusPerFriend: domain.ReferralBonusStars,
		Referrals:      list,
	}, nil
}

func ReferralLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%s", strings.TrimPrefix(botUsername, "@"), code)
}
