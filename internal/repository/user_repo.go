package repository

import (
	"context"
	"errors"
	"fmt"

	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	balance_stars, balance_ton, COALESCE(referral_code, ''), referred_by,
	total_cases_opened, total_spent_stars, total_earned_stars, created_at, updated_at, last_active`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	return scanUser(row)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
	return scanUser(row)
}

// ищет пользователя по реферальному коду внутри транзакции регистрации
func (r *UserRepository) GetByReferralCodeTx(ctx context.Context, tx pgx.Tx, code string) (*domain.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
	return scanUser(row)
}

// CreateTx вставляет пользователя. При гонке двух первых входов второй получает created=false
func (r *UserRepository) CreateTx(ctx context.Context, tx pgx.Tx, u *domain.User) (created bool, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, balance_stars, referral_code, referred_by)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING id, created_at, updated_at, last_active
	`, u.TelegramID, u.Username, u.FirstName, u.LastName, u.BalanceStars, u.ReferralCode, u.ReferredBy).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return true, nil
}

// обновляет имя из initData и время последней активности
func (r *UserRepository) TouchIdentity(ctx context.Context, id int64, ident domain.TelegramIdentity) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users
		SET username = NULLIF($2, ''), first_name = NULLIF($3, ''), last_name = NULLIF($4, ''),
		    last_active = now(), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, ident.Username, ident.FirstName, ident.LastName)
	return scanUser(row)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users
		SET username = COALESCE($2, username),
		    first_name = COALESCE($3, first_name),
		    last_name = COALESCE($4, last_name),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.Username, upd.FirstName, upd.LastName)
	return scanUser(row)
}

// LockBalanceTx блокирует строку пользователя до конца транзакции
func (r *UserRepository) LockBalanceTx(ctx context.Context, tx pgx.Tx, id int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance_stars FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (r *UserRepository) CountReferrals(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by = $1`, id).Scan(&n)
	return n, err
}

// возвращает приглашенных пользователем
func (r *UserRepository) ListReferrals(ctx context.Context, id int64) ([]domain.ReferralInfo, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(username, ''),
		       created_at, total_cases_opened, last_active
		FROM users
		WHERE referred_by = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ReferralInfo
	for rows.Next() {
		var ref domain.ReferralInfo
		var first, last string
		if err := rows.Scan(&ref.ID, &first, &last, &ref.Username, &ref.JoinedAt, &ref.CasesOpened, &ref.LastActive); err != nil {
			return nil, err
		}
		ref.Name = displayName(first, last, ref.Username)
		result = append(result, ref)
	}
	return result, rows.Err()
}

// Top пользователи с наибольшим числом открытых кейсов
func (r *UserRepository) Top(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY total_cases_opened DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func displayName(first, last, username string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case username != "":
		return "@" + username
	}
	return "Пользователь"
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.BalanceStars, &u.BalanceTON, &u.ReferralCode, &u.ReferredBy,
		&u.TotalCasesOpened, &u.TotalSpentStars, &u.TotalEarnedStars,
		&u.CreatedAt, &u.UpdatedAt, &u.LastActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
