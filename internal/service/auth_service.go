package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crazygift/internal/domain"
	"crazygift/internal/logger"
	"crazygift/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type AuthResult struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	IsNew     bool         `json:"is_new"`
}

type AuthService struct {
	db        *pgxpool.Pool
	users     *repository.UserRepository
	txs       *repository.TransactionRepository
	referrals *repository.ReferralRepository
	balance   *BalanceService
	audit     *AuditService
	tokens    *TokenManager
	botToken  string
	maxAge    time.Duration
}

func NewAuthService(db *pgxpool.Pool, balance *BalanceService, audit *AuditService, tokens *TokenManager, botToken string, maxAge time.Duration) *AuthService {
	return &AuthService{
		db:        db,
		users:     repository.NewUserRepository(db),
		txs:       repository.NewTransactionRepository(db),
		referrals: repository.NewReferralRepository(db),
		balance:   balance,
		audit:     audit,
		tokens:    tokens,
		botToken:  botToken,
		maxAge:    maxAge,
	}
}

// Authenticate проверяет initData, при первом входе создает пользователя и выдает JWT
func (s *AuthService) Authenticate(ctx context.Context, initData, ip, userAgent string) (*AuthResult, error) {
	values, err := ValidateTelegramInitData(initData, s.botToken, s.maxAge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ident, err := ParseTelegramIdentity(values)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.findOrRegister(ctx, ident)
	if err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	s.audit.LogLogin(ctx, user.ID, ip, userAgent)
	return &AuthResult{User: user, Token: token, ExpiresAt: expires, IsNew: isNew}, nil
}

func (s *AuthService) findOrRegister(ctx context.Context, ident domain.TelegramIdentity) (*domain.User, bool, error) {
	existing, err := s.users.GetByTelegramID(ctx, ident.TelegramID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get user: %v", domain.ErrInternal, err)
	}
	if existing != nil {
		u, err := s.users.TouchIdentity(ctx, existing.ID, ident)
		if err != nil {
			return nil, false, fmt.Errorf("%w: touch user: %v", domain.ErrInternal, err)
		}
		return u, false, nil
	}

	u, created, err := s.register(ctx, ident)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// параллельный первый вход уже создал запись
		u, err = s.users.GetByTelegramID(ctx, ident.TelegramID)
		if err != nil || u == nil {
			return nil, false, fmt.Errorf("%w: reload user: %v", domain.ErrInternal, err)
		}
	}
	return u, created, nil
}

func (s *AuthService) register(ctx context.Context, ident domain.TelegramIdentity) (*domain.User, bool, error) {
	log := logger.WithContext(ctx).With("telegram_id", ident.TelegramID)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("%w: begin: %v", domain.ErrInternal, err)
	}
	defer tx.Rollback(ctx)

	code, err := s.freeReferralCode(ctx, tx, ident.TelegramID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: referral code: %v", domain.ErrInternal, err)
	}

	user := &domain.User{
		TelegramID:   ident.TelegramID,
		Username:     ident.Username,
		FirstName:    ident.FirstName,
		LastName:     ident.LastName,
		BalanceStars: domain.WelcomeBonusStars,
		ReferralCode: code,
	}

	var referrer *domain.User
	if refCode := ReferralCodeFromStartParam(ident.StartParam); refCode != "" {
		referrer, err = s.users.GetByReferralCodeTx(ctx, tx, refCode)
		if err != nil {
			return nil, false, fmt.Errorf("%w: find referrer: %v", domain.ErrInternal, err)
		}
		if referrer != nil {
			user.ReferredBy = &referrer.ID
		}
	}

	created, err := s.users.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if !created {
		return nil, false, nil
	}

	if referrer != nil {
		if err := s.payReferralBonus(ctx, tx, referrer, user); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: commit: %v", domain.ErrInternal, err)
	}

	log.Info("новый пользователь", "user_id", user.ID, "referred", referrer != nil)
	return user, true, nil
}

func (s *AuthService) payReferralBonus(ctx context.Context, tx pgx.Tx, referrer, referred *domain.User) error {
	if _, err := s.balance.CreditWithTx(ctx, tx, referrer.ID, domain.ReferralBonusStars); err != nil {
		return fmt.Errorf("%w: referral credit: %v", domain.ErrInternal, err)
	}

	bonus := &domain.Transaction{
		UserID:      referrer.ID,
		Type:        domain.TxReferralBonus,
		Amount:      decimal.NewFromInt(domain.ReferralBonusStars),
		Currency:    domain.CurrencyStars,
		Status:      domain.StatusCompleted,
		Description: "Бонус за приглашенного друга",
		ExtraData:   map[string]interface{}{"referred_user_id": referred.ID},
	}
	if err := s.txs.CreateTx(ctx, tx, bonus); err != nil {
		return fmt.Errorf("%w: referral tx: %v", domain.ErrInternal, err)
	}

	err := s.referrals.CreatePaidTx(ctx, tx, &repository.ReferralReward{
		ReferrerID:       referrer.ID,
		ReferredID:       referred.ID,
		TransactionID:    bonus.ID,
		CommissionAmount: domain.ReferralBonusStars,
		CommissionRate:   decimal.Zero,
	})
	if err != nil {
		return fmt.Errorf("%w: referral row: %v", domain.ErrInternal, err)
	}
	return nil
}

// короткий код может совпасть у двух id с одинаковым хвостом, тогда берем полный id
func (s *AuthService) freeReferralCode(ctx context.Context, tx pgx.Tx, telegramID int64) (string, error) {
	code := GenerateReferralCode(telegramID)
	taken, err := s.users.GetByReferralCodeTx(ctx, tx, code)
	if err != nil {
		return "", err
	}
	if taken == nil {
		return code, nil
	}
	full := strconv.FormatInt(telegramID, 10)
	return "CG" + full + strconv.Itoa(digitSum(full)%10), nil
}

// GenerateReferralCode: CG, последние 6 цифр telegram id и контрольная цифра
func GenerateReferralCode(telegramID int64) string {
	digits := fmt.Sprintf("%06d", telegramID)
	tail := digits[len(digits)-6:]
	return "CG" + tail + strconv.Itoa(digitSum(tail)%10)
}

func digitSum(s string) int {
	sum := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sum += int(r - '0')
		}
	}
	return sum
}

// ReferralCodeFromStartParam принимает ref_CODE или сам код CG...
func ReferralCodeFromStartParam(param string) string {
	param = strings.TrimSpace(param)
	switch {
	case strings.HasPrefix(param, "ref_"):
		return strings.TrimPrefix(param, "ref_")
	case strings.HasPrefix(param, "CG"):
		return param
	}
	return ""
}
