package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replay-console/replay-console/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for clients.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, email, phone, alternative_phone, document, document_type,
	       type, status, company_name, trade_name, state_registration, notes, tags,
	       last_service_date, created_by, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.AlternativePhone, &c.Document,
		&c.DocumentType, &c.Type, &c.Status, &c.CompanyName, &c.TradeName,
		&c.StateRegistration, &c.Notes, &c.Tags, &c.LastServiceDate,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// InsertClient persists a client with its addresses.
func (r *Repository) InsertClient(ctx context.Context, c Client) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO clients (
				id, name, email, phone, alternative_phone, document, document_type,
				type, status, company_name, trade_name, state_registration, notes, tags,
				last_service_date, created_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`
		_, err := tx.Exec(ctx, query,
			c.ID, c.Name, c.Email, c.Phone, c.AlternativePhone, c.Document, c.DocumentType,
			c.Type, c.Status, c.CompanyName, c.TradeName, c.StateRegistration, c.Notes, c.Tags,
			c.LastServiceDate, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertAddresses(ctx, tx, c.ID, c.Addresses)
	})
}

func insertAddresses(ctx context.Context, tx pgx.Tx, clientID string, addresses []Address) error {
	query := `
		INSERT INTO client_addresses (
			client_id, line_order, street, number, complement, neighborhood,
			city, state, zip_code, is_main_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i, a := range addresses {
		_, err := tx.Exec(ctx, query, clientID, i+1, a.Street, a.Number, a.Complement,
			a.Neighborhood, a.City, a.State, a.ZipCode, a.IsMainAddress)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetClient retrieves a client with addresses.
func (r *Repository) GetClient(ctx context.Context, id string) (Client, error) {
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)
	c, err := scanClient(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	addresses, err := r.getAddresses(ctx, id)
	if err != nil {
		return Client{}, err
	}
	c.Addresses = addresses
	return c, nil
}

func (r *Repository) getAddresses(ctx context.Context, clientID string) ([]Address, error) {
	query := `
		SELECT street, number, complement, neighborhood, city, state, zip_code, is_main_address
		FROM client_addresses
		WHERE client_id = $1
		ORDER BY line_order
	`
	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var a Address
		err := rows.Scan(&a.Street, &a.Number, &a.Complement, &a.Neighborhood,
			&a.City, &a.State, &a.ZipCode, &a.IsMainAddress)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// ListClients retrieves clients matching equality filters, ordered by name.
// The search predicate is applied by the service.
func (r *Repository) ListClients(ctx context.Context, filters Filters) ([]Client, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, filters.Status)
		argPos++
	}
	if filters.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argPos))
		args = append(args, filters.Type)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM clients
		%s
		ORDER BY name, id
	`, clientColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		addresses, err := r.getAddresses(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Addresses = addresses
	}
	return list, nil
}

// UpdateClient applies a partial update. A non-nil addresses slice replaces
// the child rows wholesale.
func (r *Repository) UpdateClient(ctx context.Context, id string, patch UpdateClientRequest, now time.Time) error {
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
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.AlternativePhone != nil {
		set("alternative_phone", *patch.AlternativePhone)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Tags != nil {
		set("tags", patch.Tags)
	}
	set("updated_at", now)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE clients SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argPos)

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrClientNotFound
		}

		if patch.Addresses != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM client_addresses WHERE client_id = $1`, id); err != nil {
				return err
			}
			if err := insertAddresses(ctx, tx, id, patch.Addresses); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteClient removes a client and its addresses.
func (r *Repository) DeleteClient(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM client_addresses WHERE client_id = $1`, id); err != nil {
			return err
		}
		cmdTag, err := tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrClientNotFound
		}
		return nil
	})
}

// CountSalesByClient counts sales referencing a client.
func (r *Repository) CountSalesByClient(ctx context.Context, clientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE client_id = $1`, clientID).Scan(&count)
	return count, err
}
