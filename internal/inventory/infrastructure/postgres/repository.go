package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
)

var ErrAlreadyDeducted = errors.New("order already deducted")

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

func (r *Repository) LoadParts(ctx context.Context) ([]domain.Part, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, description, qty_on_hand, price_cents FROM parts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []domain.Part
	for rows.Next() {
		var p domain.Part
		if err := rows.Scan(&p.ID, &p.Description, &p.QtyOnHand, &p.PriceCents); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ApplyDeductions decrements every part and records the deduction lines in one
// transaction. The (order_id, part_id) key on stock_deductions makes a second
// commit of the same order fail instead of deducting twice. Manual corrections
// pass an empty orderID and are not recorded.
func (r *Repository) ApplyDeductions(ctx context.Context, orderID string, deductions []domain.Deduction) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, d := range deductions {
		ct, err := tx.Exec(ctx, `UPDATE parts SET qty_on_hand = qty_on_hand - $2, updated_at = now()
			WHERE id = $1 AND qty_on_hand >= $2`, d.PartID, d.Quantity)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("%w: part %s", domain.ErrInsufficientStock, d.PartID)
		}
	}

	if orderID != "" {
		batch := &pgx.Batch{}
		for _, d := range deductions {
			batch.Queue(`INSERT INTO stock_deductions (order_id, part_id, quantity) VALUES ($1,$2,$3)
				ON CONFLICT (order_id, part_id) DO NOTHING`, orderID, d.PartID, d.Quantity)
		}
		br := tx.SendBatch(ctx, batch)
		for range deductions {
			ct, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			if ct.RowsAffected() == 0 {
				_ = br.Close()
				return fmt.Errorf("%w: %s", ErrAlreadyDeducted, orderID)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) Restock(ctx context.Context, partID string, qty int64) error {
	ct, err := r.pool.Exec(ctx, `UPDATE parts SET qty_on_hand = qty_on_hand + $2, updated_at = now() WHERE id = $1`, partID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPart, partID)
	}
	return nil
}

func (r *Repository) HasDeductions(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_deductions WHERE order_id = $1)`, orderID).Scan(&exists)
	return exists, err
}
