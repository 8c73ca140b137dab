package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/course-checkout/internal/model"
)

const purchaseColumns = `id::text, course_id, user_id, course_title, amount, status, created_at, updated_at`

// CreatePurchase сохраняет новую покупку в статусе pending и возвращает её с присвоенным идентификатором.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p model.Purchase) (*model.Purchase, error) {
	p.ID = uuid.NewString()
	p.Status = model.PurchaseStatusPending

	row := r.pool.QueryRow(ctx,
		`INSERT INTO purchases (id, course_id, user_id, course_title, amount, status)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		p.ID, p.CourseID, p.UserID, p.CourseTitle, p.Amount, string(p.Status),
	)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, storeError("insert purchase", err)
	}

	return &p, nil
}

// GetPurchase возвращает покупку по идентификатору.
func (r *PostgresRepository) GetPurchase(ctx context.Context, id string) (*model.Purchase, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: purchase %q", model.ErrNotFound, id)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1::uuid`,
		id,
	)

	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: purchase %s", model.ErrNotFound, id)
		}
		return nil, storeError("get purchase", err)
	}

	return p, nil
}

// TransitionPurchase переводит покупку из pending в указанный статус одним условным UPDATE.
// applied сообщает, изменилась ли запись, found сообщает, существует ли она вообще.
func (r *PostgresRepository) TransitionPurchase(ctx context.Context, id string, to model.PurchaseStatus) (applied, found bool, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		return false, false, nil
	}

	err = r.pool.QueryRow(ctx,
		`WITH upd AS (
			UPDATE purchases
			   SET status = $2, updated_at = now()
			 WHERE id = $1::uuid AND status = $3
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM upd),
		       EXISTS (SELECT 1 FROM purchases WHERE id = $1::uuid)`,
		id, string(to), string(model.PurchaseStatusPending),
	).Scan(&applied, &found)
	if err != nil {
		return false, false, storeError("transition purchase", err)
	}

	return applied, found, nil
}

// ListStalePending возвращает покупки, зависшие в статусе pending дольше olderThan.
func (r *PostgresRepository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchases
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.PurchaseStatusPending), time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, storeError("select stale purchases", err)
	}
	defer rows.Close()

	var res []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, storeError("scan purchase", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("rows error", err)
	}

	return res, nil
}

// CountStalePending возвращает количество покупок, зависших в статусе pending дольше olderThan.
func (r *PostgresRepository) CountStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM purchases WHERE status = $1 AND created_at < $2`,
		string(model.PurchaseStatusPending), time.Now().Add(-olderThan),
	).Scan(&n)
	if err != nil {
		return 0, storeError("count stale purchases", err)
	}
	return n, nil
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p      model.Purchase
		status string
	)
	err := row.Scan(&p.ID, &p.CourseID, &p.UserID, &p.CourseTitle, &p.Amount, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}
