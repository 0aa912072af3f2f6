package repository

import (
	"context"
	"errors"

	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const inventoryColumns = `id, user_id, item_name, item_value, item_stars, rarity, COALESCE(image_url, ''),
	COALESCE(case_name, ''), case_id, is_withdrawn, is_upgraded, withdrawal_requested_at, created_at`

type InventoryRepository struct {
	db *pgxpool.Pool
}

func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) CreateTx(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	return tx.QueryRow(ctx, `
		INSERT INTO inventory (user_id, item_name, item_value, item_stars, rarity, image_url, case_name, case_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id, created_at
	`, item.UserID, item.ItemName, item.ItemValue, item.ItemStars, item.Rarity, item.ImageURL, item.CaseName, item.CaseID).
		Scan(&item.ID, &item.CreatedAt)
}

func (r *InventoryRepository) GetByID(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	row := r.db.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE id = $1`, id)
	return scanInventoryItem(row)
}

// LockOwnedTx блокирует предмет пользователя, который еще не выведен. nil если такого нет
func (r *InventoryRepository) LockOwnedTx(ctx context.Context, tx pgx.Tx, itemID, userID int64) (*domain.InventoryItem, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE id = $1 AND user_id = $2 AND is_withdrawn = FALSE
		FOR UPDATE
	`, itemID, userID)
	return scanInventoryItem(row)
}

func (r *InventoryRepository) DeleteTx(ctx context.Context, tx pgx.Tx, itemID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM inventory WHERE id = $1`, itemID)
	return err
}

// MarkWithdrawnTx замораживает предмет под вывод
func (r *InventoryRepository) MarkWithdrawnTx(ctx context.Context, tx pgx.Tx, item *domain.InventoryItem) error {
	return tx.QueryRow(ctx, `
		UPDATE inventory SET is_withdrawn = TRUE, withdrawal_requested_at = now()
		WHERE id = $1
		RETURNING is_withdrawn, withdrawal_requested_at
	`, item.ID).Scan(&item.IsWithdrawn, &item.WithdrawalRequestedAt)
}

// UnfreezeTx возвращает предмет в инвентарь после отказа в выводе. false если предмета уже нет
func (r *InventoryRepository) UnfreezeTx(ctx context.Context, tx pgx.Tx, itemID, userID int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE inventory SET is_withdrawn = FALSE, withdrawal_requested_at = NULL
		WHERE id = $1 AND user_id = $2
	`, itemID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// удаление администратором, nil если предмета нет
func (r *InventoryRepository) Delete(ctx context.Context, itemID, userID int64) (*domain.InventoryItem, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM inventory WHERE id = $1 AND user_id = $2
		RETURNING `+inventoryColumns,
		itemID, userID)
	return scanInventoryItem(row)
}

func (r *InventoryRepository) List(ctx context.Context, userID int64, f domain.InventoryFilter) ([]domain.InventoryItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE user_id = $1
		  AND ($2 = '' OR rarity = $2)
		  AND ($3 = TRUE OR is_withdrawn = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, userID, f.Rarity, f.IncludeWithdrawn, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInventoryItems(rows)
}

func (r *InventoryRepository) ListWithdrawn(ctx context.Context, userID int64) ([]domain.InventoryItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE user_id = $1 AND is_withdrawn = TRUE
		ORDER BY withdrawal_requested_at DESC NULLS LAST, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInventoryItems(rows)
}

// количество активных предметов по редкости
func (r *InventoryRepository) CountByRarity(ctx context.Context, userID int64) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT rarity, COUNT(*)
		FROM inventory
		WHERE user_id = $1 AND is_withdrawn = FALSE
		GROUP BY rarity
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var rarity string
		var n int64
		if err := rows.Scan(&rarity, &n); err != nil {
			return nil, err
		}
		counts[rarity] = n
	}
	return counts, rows.Err()
}

func (r *InventoryRepository) Stats(ctx context.Context, userID int64) (*domain.InventoryStats, error) {
	stats := &domain.InventoryStats{
		ByRarity:       make(map[string]domain.RarityStats),
		PortfolioValue: decimal.Zero,
	}

	rows, err := r.db.Query(ctx, `
		SELECT rarity, COUNT(*), COALESCE(SUM(item_value), 0), COALESCE(SUM(item_stars), 0)::bigint
		FROM inventory
		WHERE user_id = $1 AND is_withdrawn = FALSE
		GROUP BY rarity
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rarity string
		var rs domain.RarityStats
		if err := rows.Scan(&rarity, &rs.Count, &rs.TotalValue, &rs.TotalStars); err != nil {
			return nil, err
		}
		stats.ByRarity[rarity] = rs
		stats.TotalItems += rs.Count
		stats.PortfolioValue = stats.PortfolioValue.Add(rs.TotalValue)
		stats.PortfolioStars += rs.TotalStars
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory WHERE user_id = $1 AND is_withdrawn = TRUE
	`, userID).Scan(&stats.WithdrawnItems); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory
		WHERE user_id = $1 AND is_withdrawn = FALSE
		ORDER BY item_stars DESC, id ASC
		LIMIT 1
	`, userID)
	best, err := scanInventoryItem(row)
	if err != nil {
		return nil, err
	}
	stats.MostValuableItem = best

	return stats, nil
}

func scanInventoryItem(row pgx.Row) (*domain.InventoryItem, error) {
	var it domain.InventoryItem
	err := row.Scan(&it.ID, &it.UserID, &it.ItemName, &it.ItemValue, &it.ItemStars, &it.Rarity, &it.ImageURL,
		&it.CaseName, &it.CaseID, &it.IsWithdrawn, &it.IsUpgraded, &it.WithdrawalRequestedAt, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanInventoryItems(rows pgx.Rows) ([]domain.InventoryItem, error) {
	items := []domain.InventoryItem{}
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}
