package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/market-system/internal/model"
)

// CreateProduct создаёт новый товар каталога.
func (r *PostgresRepository) CreateProduct(ctx context.Context, code, name string, price, inventory int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (code, name, price, inventory) VALUES ($1, $2, $3, $4) RETURNING id`,
		code, name, price, inventory,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return 0, fmt.Errorf("%w: %s", ErrProductExists, code)
			case pgerrcode.CheckViolation:
				return 0, ErrInvalidProduct
			}
		}
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return scanProductRow(r.pool.QueryRow(ctx,
		`SELECT id, code, name, price, inventory FROM products WHERE id = $1`,
		id,
	))
}

// ListProducts возвращает все товары каталога.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	return r.selectProducts(ctx,
		`SELECT id, code, name, price, inventory FROM products ORDER BY id`,
	)
}

// SearchProducts возвращает товары, название которых содержит ключевое слово.
func (r *PostgresRepository) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	return r.selectProducts(ctx,
		`SELECT id, code, name, price, inventory FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY id`,
		keyword,
	)
}

func (r *PostgresRepository) selectProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Inventory); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanProductRow(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.Inventory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

// CreateCustomer создаёт нового покупателя.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c *model.Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (username, password_hash, email, first_name, last_name, phone, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.Username, c.PasswordHash, c.Email, c.FirstName, c.LastName, c.Phone, c.Address,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCustomerExists, c.Username)
		}
		return 0, fmt.Errorf("create customer: %w", err)
	}
	return id, nil
}

const customerColumns = `id, username, password_hash, email, first_name, last_name, phone, address, balance, created_at`

// GetCustomer возвращает покупателя по идентификатору.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return scanCustomerRow(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`,
		id,
	))
}

// GetCustomerByUsername возвращает покупателя по имени пользователя.
func (r *PostgresRepository) GetCustomerByUsername(ctx context.Context, username string) (*model.Customer, error) {
	return scanCustomerRow(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE username = $1`,
		username,
	))
}

// ListCustomers возвращает всех покупателей.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return r.selectCustomers(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY id`,
	)
}

// SearchCustomers возвращает покупателей по вхождению ключевого слова в адрес,
// имя пользователя, имя или фамилию.
func (r *PostgresRepository) SearchCustomers(ctx context.Context, keyword string) ([]model.Customer, error) {
	return r.selectCustomers(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE address ILIKE '%' || $1 || '%'
		    OR username ILIKE '%' || $1 || '%'
		    OR first_name ILIKE '%' || $1 || '%'
		    OR last_name ILIKE '%' || $1 || '%'
		 ORDER BY id`,
		keyword,
	)
}

func (r *PostgresRepository) selectCustomers(ctx context.Context, query string, args ...any) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var res []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.Address, &c.Balance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanCustomerRow(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Username, &c.PasswordHash, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.Address, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("select customer: %w", err)
	}
	return &c, nil
}

// UpdateCustomerProfile обновляет редактируемые поля покупателя.
// Имя пользователя, пароль и идентификатор через этот путь не изменяются.
func (r *PostgresRepository) UpdateCustomerProfile(ctx context.Context, c *model.Customer) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE customers
		 SET email = $2, first_name = $3, last_name = $4, phone = $5, address = $6, balance = $7
		 WHERE id = $1`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Phone, c.Address, c.Balance,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
