package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for stock operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const itemColumns = `id, name, model, category, manufacturer, quantity, reserved_quantity,
	       minimum_stock, warehouse, shelf, position, status, unit_price, supplier,
	       notes, created_by, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID, &item.Name, &item.Model, &item.Category, &item.Manufacturer,
		&item.Quantity, &item.ReservedQuantity, &item.MinimumStock,
		&item.Location.Warehouse, &item.Location.Shelf, &item.Location.Position,
		&item.Status, &item.UnitPrice, &item.Supplier, &item.Notes,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

// ============================================================================
// ITEM OPERATIONS
// ============================================================================

// GetItem retrieves an item by ID.
func (r *Repository) GetItem(ctx context.Context, id string) (Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_items WHERE id = $1`, itemColumns)
	item, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// ListItems retrieves every item ordered by name.
func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_items ORDER BY name, id`, itemColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertItem persists a new item.
func (r *Repository) InsertItem(ctx context.Context, item Item) error {
	query := `
		INSERT INTO stock_items (
			id, name, model, category, manufacturer, quantity, reserved_quantity,
			minimum_stock, warehouse, shelf, position, status, unit_price, supplier,
			notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.pool.Exec(ctx, query,
		item.ID, item.Name, item.Model, item.Category, item.Manufacturer,
		item.Quantity, item.ReservedQuantity, item.MinimumStock,
		item.Location.Warehouse, item.Location.Shelf, item.Location.Position,
		item.Status, item.UnitPrice, item.Supplier, item.Notes,
		item.CreatedBy, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// UpdateItem applies a partial update and returns the updated row.
func (r *Repository) UpdateItem(ctx context.Context, id string, patch UpdateItemRequest, now time.Time) (Item, error) {
	var setClauses []string
	var args []interface{}
	argPos := 1

	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Model != nil {
		set("model", *patch.Model)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Manufacturer != nil {
		set("manufacturer", *patch.Manufacturer)
	}
	if patch.MinimumStock != nil {
		set("minimum_stock", *patch.MinimumStock)
	}
	if patch.Location != nil {
		set("warehouse", patch.Location.Warehouse)
		set("shelf", patch.Location.Shelf)
		set("position", patch.Location.Position)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.UnitPrice != nil {
		set("unit_price", *patch.UnitPrice)
	}
	if patch.Supplier != nil {
		set("supplier", *patch.Supplier)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	set("updated_at", now)

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE stock_items
		SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argPos, itemColumns)

	item, err := scanItem(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// DeleteItem removes an item. Movement history rows are kept.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM stock_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ============================================================================
// MOVEMENT OPERATIONS
// ============================================================================

// InsertMovement persists one audit record.
func (r *Repository) InsertMovement(ctx context.Context, m Movement) error {
	query := `
		INSERT INTO stock_movements (
			id, item_id, item_name, type, quantity, description, performed_by,
			previous_quantity, new_quantity, reference_id, reference_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		m.ID, m.ItemID, m.ItemName, m.Type, m.Quantity, m.Description, m.PerformedBy,
		m.PreviousQuantity, m.NewQuantity, m.ReferenceID, m.ReferenceType, m.CreatedAt,
	)
	return err
}

// ListMovementsByItem retrieves movements for one item, newest first.
func (r *Repository) ListMovementsByItem(ctx context.Context, itemID string) ([]Movement, error) {
	query := `
		SELECT id, item_id, item_name, type, quantity, description, performed_by,
		       previous_quantity, new_quantity, reference_id, reference_type, created_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		err := rows.Scan(
			&m.ID, &m.ItemID, &m.ItemName, &m.Type, &m.Quantity, &m.Description,
			&m.PerformedBy, &m.PreviousQuantity, &m.NewQuantity,
			&m.ReferenceID, &m.ReferenceType, &m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// CountMovementsByItem counts audit rows for one item.
func (r *Repository) CountMovementsByItem(ctx context.Context, itemID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE item_id = $1`, itemID).Scan(&count)
	return count, err
}

// ============================================================================
// ENTRY OPERATIONS
// ============================================================================

// ListEntries retrieves entries, newest first.
func (r *Repository) ListEntries(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, item_id, item_name, quantity, unit_price, total_price, supplier,
		       invoice_number, invoice_date, received_by, received_date, notes,
		       created_by, created_at
		FROM stock_entries
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.ItemID, &e.ItemName, &e.Quantity, &e.UnitPrice, &e.TotalPrice,
			&e.Supplier, &e.InvoiceNumber, &e.InvoiceDate, &e.ReceivedBy,
			&e.ReceivedDate, &e.Notes, &e.CreatedBy, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ============================================================================
// DISPATCH OPERATIONS
// ============================================================================

const dispatchColumns = `id, sale_id, client_id, client_name, separation_order_id, destination,
	       dispatch_date, dispatched_by, technician, technician_contact, status,
	       tracking_code, estimated_delivery, actual_delivery, notes,
	       created_by, created_at, updated_at`

func scanDispatch(row pgx.Row) (Dispatch, error) {
	var d Dispatch
	err := row.Scan(
		&d.ID, &d.SaleID, &d.ClientID, &d.ClientName, &d.SeparationOrderID,
		&d.Destination, &d.DispatchDate, &d.DispatchedBy, &d.Technician,
		&d.TechnicianContact, &d.Status, &d.TrackingCode, &d.EstimatedDelivery,
		&d.ActualDelivery, &d.Notes, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

// GetDispatch retrieves a dispatch with its lines.
func (r *Repository) GetDispatch(ctx context.Context, id string) (Dispatch, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_dispatches WHERE id = $1`, dispatchColumns)
	d, err := scanDispatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispatch{}, ErrDispatchNotFound
		}
		return Dispatch{}, err
	}
	lines, err := r.getDispatchLines(ctx, id)
	if err != nil {
		return Dispatch{}, err
	}
	d.Lines = lines
	return d, nil
}

func (r *Repository) getDispatchLines(ctx context.Context, dispatchID string) ([]DispatchLine, error) {
	query := `
		SELECT item_id, item_name, quantity
		FROM stock_dispatch_lines
		WHERE dispatch_id = $1
		ORDER BY line_order
	`
	rows, err := r.pool.Query(ctx, query, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []DispatchLine
	for rows.Next() {
		var line DispatchLine
		if err := rows.Scan(&line.ItemID, &line.ItemName, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListDispatches retrieves dispatches with lines, newest first.
func (r *Repository) ListDispatches(ctx context.Context) ([]Dispatch, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_dispatches ORDER BY created_at DESC, id DESC`, dispatchColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dispatches []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range dispatches {
		lines, err := r.getDispatchLines(ctx, dispatches[i].ID)
		if err != nil {
			return nil, err
		}
		dispatches[i].Lines = lines
	}
	return dispatches, nil
}

// UpdateDispatchStatus updates lifecycle fields of a dispatch.
func (r *Repository) UpdateDispatchStatus(ctx context.Context, id string, status DispatchStatus, actualDelivery *time.Time, now time.Time) error {
	query := `
		UPDATE stock_dispatches
		SET status = $1, actual_delivery = COALESCE($2, actual_delivery), updated_at = $3
		WHERE id = $4
	`
	cmdTag, err := r.pool.Exec(ctx, query, status, actualDelivery, now, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDispatchNotFound
	}
	return nil
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) GetItemForUpdate(ctx context.Context, id string) (Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_items WHERE id = $1 FOR UPDATE`, itemColumns)
	item, err := scanItem(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (t *txRepo) AddItemQuantity(ctx context.Context, id string, delta int, now time.Time) error {
	query := `
		UPDATE stock_items
		SET quantity = quantity + $1, updated_at = $2
		WHERE id = $3
	`
	cmdTag, err := t.tx.Exec(ctx, query, delta, now, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepo) AddReservedQuantity(ctx context.Context, id string, delta int) error {
	query := `
		UPDATE stock_items
		SET reserved_quantity = reserved_quantity + $1
		WHERE id = $2
	`
	cmdTag, err := t.tx.Exec(ctx, query, delta, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepo) InsertEntry(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO stock_entries (
			id, item_id, item_name, quantity, unit_price, total_price, supplier,
			invoice_number, invoice_date, received_by, received_date, notes,
			created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := t.tx.Exec(ctx, query,
		e.ID, e.ItemID, e.ItemName, e.Quantity, e.UnitPrice, e.TotalPrice,
		e.Supplier, e.InvoiceNumber, e.InvoiceDate, e.ReceivedBy,
		e.ReceivedDate, e.Notes, e.CreatedBy, e.CreatedAt,
	)
	return err
}

func (t *txRepo) InsertDispatch(ctx context.Context, d Dispatch) error {
	query := `
		INSERT INTO stock_dispatches (
			id, sale_id, client_id, client_name, separation_order_id, destination,
			dispatch_date, dispatched_by, technician, technician_contact, status,
			tracking_code, estimated_delivery, actual_delivery, notes,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := t.tx.Exec(ctx, query,
		d.ID, d.SaleID, d.ClientID, d.ClientName, d.SeparationOrderID, d.Destination,
		d.DispatchDate, d.DispatchedBy, d.Technician, d.TechnicianContact, d.Status,
		d.TrackingCode, d.EstimatedDelivery, d.ActualDelivery, d.Notes,
		d.CreatedBy, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return err
	}

	lineQuery := `
		INSERT INTO stock_dispatch_lines (dispatch_id, line_order, item_id, item_name, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, line := range d.Lines {
		if _, err := t.tx.Exec(ctx, lineQuery, d.ID, i+1, line.ItemID, line.ItemName, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
