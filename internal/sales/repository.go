package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const saleColumns = `id, client_id, client_name,
	       plan_id, plan_name, plan_description, plan_value, plan_installation_fee, plan_features,
	       payment_total_value, payment_installation_fee, payment_first_date, payment_method, payment_status,
	       status,
	       address_street, address_number, address_complement, address_neighborhood,
	       address_city, address_state, address_zip_code,
	       sale_date, estimated_installation_date, actual_installation_date, activation_date,
	       notes, internal_notes, created_by, created_at, updated_at,
	       stock_order_id, service_order_id`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(
		&s.ID, &s.ClientID, &s.ClientName,
		&s.Plan.ID, &s.Plan.Name, &s.Plan.Description, &s.Plan.Value, &s.Plan.InstallationFee, &s.Plan.Features,
		&s.Payment.TotalValue, &s.Payment.InstallationFee, &s.Payment.FirstPaymentDate, &s.Payment.Method, &s.Payment.Status,
		&s.Status,
		&s.InstallationAddress.Street, &s.InstallationAddress.Number, &s.InstallationAddress.Complement,
		&s.InstallationAddress.Neighborhood, &s.InstallationAddress.City, &s.InstallationAddress.State,
		&s.InstallationAddress.ZipCode,
		&s.SaleDate, &s.EstimatedInstallationDate, &s.ActualInstallationDate, &s.ActivationDate,
		&s.Notes, &s.InternalNotes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
		&s.StockOrderID, &s.ServiceOrderID,
	)
	return s, err
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

// InsertSale persists a sale with its equipments and the initial timeline
// event in one transaction.
func (r *Repository) InsertSale(ctx context.Context, sale Sale) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO sales (
			id, client_id, client_name,
			plan_id, plan_name, plan_description, plan_value, plan_installation_fee, plan_features,
			payment_total_value, payment_installation_fee, payment_first_date, payment_method, payment_status,
			status,
			address_street, address_number, address_complement, address_neighborhood,
			address_city, address_state, address_zip_code,
			sale_date, estimated_installation_date, actual_installation_date, activation_date,
			notes, internal_notes, created_by, created_at, updated_at,
			stock_order_id, service_order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		          $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)
	`
	_, err = tx.Exec(ctx, query,
		sale.ID, sale.ClientID, sale.ClientName,
		sale.Plan.ID, sale.Plan.Name, sale.Plan.Description, sale.Plan.Value, sale.Plan.InstallationFee, sale.Plan.Features,
		sale.Payment.TotalValue, sale.Payment.InstallationFee, sale.Payment.FirstPaymentDate, sale.Payment.Method, sale.Payment.Status,
		sale.Status,
		sale.InstallationAddress.Street, sale.InstallationAddress.Number, sale.InstallationAddress.Complement,
		sale.InstallationAddress.Neighborhood, sale.InstallationAddress.City, sale.InstallationAddress.State,
		sale.InstallationAddress.ZipCode,
		sale.SaleDate, sale.EstimatedInstallationDate, sale.ActualInstallationDate, sale.ActivationDate,
		sale.Notes, sale.InternalNotes, sale.CreatedBy, sale.CreatedAt, sale.UpdatedAt,
		sale.StockOrderID, sale.ServiceOrderID,
	)
	if err != nil {
		return err
	}

	if err := insertEquipments(ctx, tx, sale.ID, sale.Equipments); err != nil {
		return err
	}

	for _, event := range sale.Timeline {
		if err := insertTimelineEvent(ctx, tx, sale.ID, event); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertEquipments(ctx context.Context, tx pgx.Tx, saleID string, equipments []Equipment) error {
	query := `
		INSERT INTO sale_equipments (sale_id, line_order, equipment_id, name, model, serial_number, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, eq := range equipments {
		if _, err := tx.Exec(ctx, query, saleID, i+1, eq.ID, eq.Name, eq.Model, eq.SerialNumber, eq.Quantity, eq.Status); err != nil {
			return err
		}
	}
	return nil
}

func insertTimelineEvent(ctx context.Context, tx pgx.Tx, saleID string, event TimelineEvent) error {
	query := `
		INSERT INTO sale_timeline (sale_id, seq, status, description, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query, saleID, event.Seq, event.Status, event.Description, event.Notes, event.CreatedBy, event.CreatedAt)
	return err
}

// GetSale retrieves a sale with equipments, timeline and documents.
func (r *Repository) GetSale(ctx context.Context, id string) (Sale, error) {
	query := fmt.Sprintf(`SELECT %s FROM sales WHERE id = $1`, saleColumns)
	sale, err := scanSale(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	if err := r.loadChildren(ctx, &sale); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (r *Repository) loadChildren(ctx context.Context, sale *Sale) error {
	equipments, err := r.getEquipments(ctx, sale.ID)
	if err != nil {
		return err
	}
	sale.Equipments = equipments

	timeline, err := r.getTimeline(ctx, sale.ID)
	if err != nil {
		return err
	}
	sale.Timeline = timeline

	documents, err := r.getDocuments(ctx, sale.ID)
	if err != nil {
		return err
	}
	sale.Documents = documents
	return nil
}

func (r *Repository) getEquipments(ctx context.Context, saleID string) ([]Equipment, error) {
	query := `
		SELECT equipment_id, name, model, serial_number, quantity, status
		FROM sale_equipments
		WHERE sale_id = $1
		ORDER BY line_order
	`
	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var equipments []Equipment
	for rows.Next() {
		var eq Equipment
		if err := rows.Scan(&eq.ID, &eq.Name, &eq.Model, &eq.SerialNumber, &eq.Quantity, &eq.Status); err != nil {
			return nil, err
		}
		equipments = append(equipments, eq)
	}
	return equipments, rows.Err()
}

func (r *Repository) getTimeline(ctx context.Context, saleID string) ([]TimelineEvent, error) {
	query := `
		SELECT seq, status, description, notes, created_by, created_at
		FROM sale_timeline
		WHERE sale_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timeline []TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		if err := rows.Scan(&e.Seq, &e.Status, &e.Description, &e.Notes, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		timeline = append(timeline, e)
	}
	return timeline, rows.Err()
}

func (r *Repository) getDocuments(ctx context.Context, saleID string) ([]Document, error) {
	query := `
		SELECT seq, name, type, url, uploaded_by, uploaded_at
		FROM sale_documents
		WHERE sale_id = $1
		ORDER BY seq
	`
	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Seq, &d.Name, &d.Type, &d.URL, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

// ListSales retrieves sales matching the SQL-pushable filters, newest first.
// Search and value-range predicates are applied by the service.
func (r *Repository) ListSales(ctx context.Context, filters Filters) ([]Sale, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	add := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, value)
		argPos++
	}

	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.PaymentStatus != "" {
		add("payment_status = $%d", filters.PaymentStatus)
	}
	if filters.ClientID != "" {
		add("client_id = $%d", filters.ClientID)
	}
	if filters.DateFrom != nil {
		add("sale_date >= $%d", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		add("sale_date <= $%d", *filters.DateTo)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM sales
		%s
		ORDER BY sale_date DESC, id DESC
	`, saleColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		if err := r.loadChildren(ctx, &sales[i]); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

// DateStamp carries lifecycle dates set alongside a status transition.
type DateStamp struct {
	ActivationDate         *time.Time
	ActualInstallationDate *time.Time
}

// UpdateStatusWithEvent moves a sale to a new status and appends one timeline
// event with the next sequence number, atomically. The sale row is locked so
// concurrent transitions serialize and the sequence never collides.
func (r *Repository) UpdateStatusWithEvent(ctx context.Context, id string, from, to Status, event TimelineEvent, stamp DateStamp, now time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSaleNotFound
		}
		return err
	}
	if current != from {
		return ErrStaleStatus
	}

	_, err = tx.Exec(ctx, `
		UPDATE sales
		SET status = $1,
		    activation_date = COALESCE($2, activation_date),
		    actual_installation_date = COALESCE($3, actual_installation_date),
		    updated_at = $4
		WHERE id = $5
	`, to, stamp.ActivationDate, stamp.ActualInstallationDate, now, id)
	if err != nil {
		return err
	}

	var seq int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sale_timeline WHERE sale_id = $1`, id).Scan(&seq); err != nil {
		return err
	}
	event.Seq = seq
	if err := insertTimelineEvent(ctx, tx, id, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateSale applies a partial update. A non-nil equipments slice replaces
// the child rows wholesale.
func (r *Repository) UpdateSale(ctx context.Context, id string, patch UpdateSaleRequest, equipments []Equipment, now time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var setClauses []string
	var args []interface{}
	argPos := 1

	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if patch.Plan != nil {
		set("plan_id", patch.Plan.ID)
		set("plan_name", patch.Plan.Name)
		set("plan_description", patch.Plan.Description)
		set("plan_value", patch.Plan.Value)
		set("plan_installation_fee", patch.Plan.InstallationFee)
		set("plan_features", patch.Plan.Features)
	}
	if patch.Payment != nil {
		set("payment_total_value", patch.Payment.TotalValue)
		set("payment_installation_fee", patch.Payment.InstallationFee)
		set("payment_first_date", patch.Payment.FirstPaymentDate)
		set("payment_method", patch.Payment.Method)
		set("payment_status", patch.Payment.Status)
	}
	if patch.InstallationAddress != nil {
		set("address_street", patch.InstallationAddress.Street)
		set("address_number", patch.InstallationAddress.Number)
		set("address_complement", patch.InstallationAddress.Complement)
		set("address_neighborhood", patch.InstallationAddress.Neighborhood)
		set("address_city", patch.InstallationAddress.City)
		set("address_state", patch.InstallationAddress.State)
		set("address_zip_code", patch.InstallationAddress.ZipCode)
	}
	if patch.EstimatedInstallationDate != nil {
		set("estimated_installation_date", *patch.EstimatedInstallationDate)
	}
	if patch.ActualInstallationDate != nil {
		set("actual_installation_date", *patch.ActualInstallationDate)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.InternalNotes != nil {
		set("internal_notes", *patch.InternalNotes)
	}
	set("updated_at", now)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE sales SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argPos)

	cmdTag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}

	if equipments != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM sale_equipments WHERE sale_id = $1`, id); err != nil {
			return err
		}
		if err := insertEquipments(ctx, tx, id, equipments); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AppendDocument attaches document metadata with the next sequence number.
func (r *Repository) AppendDocument(ctx context.Context, saleID string, doc Document) (Document, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Document{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales WHERE id = $1 FOR UPDATE)`, saleID).Scan(&exists); err != nil {
		return Document{}, err
	}
	if !exists {
		return Document{}, ErrSaleNotFound
	}

	var seq int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM sale_documents WHERE sale_id = $1`, saleID).Scan(&seq); err != nil {
		return Document{}, err
	}
	doc.Seq = seq

	_, err = tx.Exec(ctx, `
		INSERT INTO sale_documents (sale_id, seq, name, type, url, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, saleID, doc.Seq, doc.Name, doc.Type, doc.URL, doc.UploadedBy, doc.UploadedAt)
	if err != nil {
		return Document{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// DeleteSale removes a sale and its child rows.
func (r *Repository) DeleteSale(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"sale_timeline", "sale_documents", "sale_equipments"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE sale_id = $1`, table), id); err != nil {
			return err
		}
	}
	cmdTag, err := tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return tx.Commit(ctx)
}
