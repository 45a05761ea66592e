package separation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for separation orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, sale_id, client_id, client_name, plan_name, status, deadline,
	       created_at, started_at, completed_at, created_by, separated_by, notes`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.SaleID, &o.ClientID, &o.ClientName, &o.PlanName, &o.Status,
		&o.Deadline, &o.CreatedAt, &o.StartedAt, &o.CompletedAt,
		&o.CreatedBy, &o.SeparatedBy, &o.Notes,
	)
	return o, err
}

// InsertOrder persists an order with its lines.
func (r *Repository) InsertOrder(ctx context.Context, o Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO separation_orders (
			id, sale_id, client_id, client_name, plan_name, status, deadline,
			created_at, started_at, completed_at, created_by, separated_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.Exec(ctx, query,
		o.ID, o.SaleID, o.ClientID, o.ClientName, o.PlanName, o.Status, o.Deadline,
		o.CreatedAt, o.StartedAt, o.CompletedAt, o.CreatedBy, o.SeparatedBy, o.Notes,
	)
	if err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO separation_order_lines (order_id, line_order, item_id, item_name, model, quantity, separated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, line := range o.Lines {
		if _, err := tx.Exec(ctx, lineQuery, o.ID, i+1, line.ItemID, line.ItemName, line.Model, line.Quantity, line.Separated); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetOrder retrieves an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM separation_orders WHERE id = $1`, orderColumns)
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	lines, err := r.getLines(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines
	return o, nil
}

func (r *Repository) getLines(ctx context.Context, orderID string) ([]Line, error) {
	query := `
		SELECT item_id, item_name, model, quantity, separated
		FROM separation_order_lines
		WHERE order_id = $1
		ORDER BY line_order
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ItemID, &line.ItemName, &line.Model, &line.Quantity, &line.Separated); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListOrders retrieves orders matching filters, newest first.
func (r *Repository) ListOrders(ctx context.Context, filters Filters) ([]Order, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filters.Status)
		argPos++
	}
	if filters.SaleID != "" {
		conditions = append(conditions, fmt.Sprintf("sale_id = $%d", argPos))
		args = append(args, filters.SaleID)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM separation_orders
		%s
		ORDER BY created_at DESC, id DESC
	`, orderColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := r.getLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

// StatusStamp carries lifecycle timestamps set alongside a transition.
type StatusStamp struct {
	StartedAt   *time.Time
	CompletedAt *time.Time
	SeparatedBy *string
}

// UpdateStatus moves an order from one status to another. The current status
// is part of the WHERE clause so a concurrent transition loses cleanly.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to Status, stamp StatusStamp) error {
	query := `
		UPDATE separation_orders
		SET status = $1,
		    started_at = COALESCE($2, started_at),
		    completed_at = COALESCE($3, completed_at),
		    separated_by = COALESCE($4, separated_by)
		WHERE id = $5 AND status = $6
	`
	cmdTag, err := r.pool.Exec(ctx, query, to, stamp.StartedAt, stamp.CompletedAt, stamp.SeparatedBy, id, from)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetOrder(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

// MarkLineSeparated flips the separated flag on one line.
func (r *Repository) MarkLineSeparated(ctx context.Context, orderID, itemID string) error {
	query := `
		UPDATE separation_order_lines
		SET separated = TRUE
		WHERE order_id = $1 AND item_id = $2
	`
	cmdTag, err := r.pool.Exec(ctx, query, orderID, itemID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// CountByStatuses counts orders in any of the given statuses.
func (r *Repository) CountByStatuses(ctx context.Context, statuses ...Status) (int, error) {
	query := `SELECT COUNT(*) FROM separation_orders WHERE status = ANY($1)`
	list := make([]string, len(statuses))
	for i, s := range statuses {
		list[i] = string(s)
	}
	var count int
	err := r.pool.QueryRow(ctx, query, list).Scan(&count)
	return count, err
}

// ListOpenBySale retrieves pending or separating orders for a sale.
func (r *Repository) ListOpenBySale(ctx context.Context, saleID string) ([]Order, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM separation_orders
		WHERE sale_id = $1 AND status IN ('pending', 'separating')
		ORDER BY created_at
	`, orderColumns)

	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
