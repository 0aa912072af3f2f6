package repository

import (
	"context"
	"errors"

	"crazygift/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const caseColumns = `id, name, COALESCE(description, ''), price_stars, items, active,
	COALESCE(image_url, ''), COALESCE(category, ''), total_opened, created_at, updated_at`

type CaseRepository struct {
	db *pgxpool.Pool
}

func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) GetByID(ctx context.Context, id int64) (*domain.Case, error) {
	row := r.db.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	return scanCase(row)
}

// GetActiveTx читает активный кейс внутри транзакции открытия
func (r *CaseRepository) GetActiveTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Case, error) {
	row := tx.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1 AND active = TRUE`, id)
	return scanCase(row)
}

// List отсортирован по цене по возрастанию
func (r *CaseRepository) List(ctx context.Context, category string, activeOnly bool) ([]domain.Case, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE ($1 = FALSE OR active = TRUE)
		  AND ($2 = '' OR category = $2)
		ORDER BY price_stars ASC, id ASC
	`, activeOnly, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

func (r *CaseRepository) Categories(ctx context.Context) ([]domain.CaseCategory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(category, ''), COUNT(id)
		FROM cases
		WHERE active = TRUE
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CaseCategory
	for rows.Next() {
		var cat domain.CaseCategory
		if err := rows.Scan(&cat.Name, &cat.Count); err != nil {
			return nil, err
		}
		cat.DisplayName = domain.CategoryDisplayName(cat.Name)
		if cat.Name == "" {
			cat.Name = "default"
		}
		result = append(result, cat)
	}
	return result, rows.Err()
}

func (r *CaseRepository) Stats(ctx context.Context) (*domain.CaseStats, error) {
	stats := &domain.CaseStats{}

	var avg *float64
	var minPrice, maxPrice *int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(id), COALESCE(SUM(total_opened), 0)::bigint, MIN(price_stars), MAX(price_stars),
		       ROUND(AVG(price_stars)::numeric, 2)::float8
		FROM cases
		WHERE active = TRUE
	`).Scan(&stats.TotalCases, &stats.TotalOpened, &minPrice, &maxPrice, &avg)
	if err != nil {
		return nil, err
	}
	if minPrice != nil {
		stats.PriceRange.Min = *minPrice
	}
	if maxPrice != nil {
		stats.PriceRange.Max = *maxPrice
	}
	if avg != nil {
		stats.PriceRange.Average = *avg
	}

	var name string
	var opened int64
	err = r.db.QueryRow(ctx, `
		SELECT name, total_opened FROM cases
		WHERE active = TRUE
		ORDER BY total_opened DESC, id ASC
		LIMIT 1
	`).Scan(&name, &opened)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		stats.PopularCase.Name = &name
		stats.PopularCase.TimesOpened = opened
	}

	return stats, nil
}

func (r *CaseRepository) IncrementOpenedTx(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE cases SET total_opened = total_opened + 1 WHERE id = $1`, id)
	return err
}

// Create используется сидом и тестами
func (r *CaseRepository) Create(ctx context.Context, c *domain.Case) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO cases (name, description, price_stars, items, active, image_url, category)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING id, created_at, updated_at
	`, c.Name, c.Description, c.PriceStars, c.Items, c.Active, c.ImageURL, c.Category).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.PriceStars, &c.Items, &c.Active,
		&c.ImageURL, &c.Category, &c.TotalOpened, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
