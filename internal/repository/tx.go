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

// Tx описывает примитивы хранилища, доступные внутри одной транзакции.
// Инварианты запасов и баланса сосредоточены в четырёх примитивах
// IncreaseInventory/DecreaseInventory и Deposit/Spend: никакой другой код
// не изменяет запасы и баланс.
type Tx interface {
	// LockCustomer блокирует строку покупателя до конца транзакции и
	// возвращает её. Блокировка сериализует все операции над корзиной
	// одного покупателя.
	LockCustomer(ctx context.Context, customerID int64) (*model.Customer, error)

	GetProductByCode(ctx context.Context, code string) (*model.Product, error)
	GetProductByID(ctx context.Context, productID int64) (*model.Product, error)
	IncreaseInventory(ctx context.Context, productID, amount int64) error
	DecreaseInventory(ctx context.Context, productID, amount int64) error

	Deposit(ctx context.Context, customerID, amount int64) error
	Spend(ctx context.Context, customerID, amount int64) error

	GetOpenOrder(ctx context.Context, customerID int64) (*model.Order, error)
	CreateOrder(ctx context.Context, customerID int64) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	AddOrderTotal(ctx context.Context, orderID, delta int64) error

	// GetOrderRows возвращает строки заказа с данными товаров,
	// упорядоченные по id товара: submit и cancel обходят товары
	// в одном и том же порядке, что исключает взаимные блокировки.
	GetOrderRows(ctx context.Context, orderID int64) ([]model.OrderRow, error)
	GetOrderRowAmount(ctx context.Context, orderID, productID int64) (int64, error)
	InsertOrderRow(ctx context.Context, orderID, productID, amount int64) error
	UpdateOrderRowAmount(ctx context.Context, orderID, productID, amount int64) error
	DeleteOrderRow(ctx context.Context, orderID, productID int64) error
}

// InTransaction выполняет fn внутри одной транзакции БД. Любая ошибка fn
// откатывает все изменения транзакции целиком.
func (r *PostgresRepository) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&pgxTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) LockCustomer(ctx context.Context, customerID int64) (*model.Customer, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, username, email, first_name, last_name, phone, address, balance, created_at
		 FROM customers
		 WHERE id = $1
		 FOR UPDATE`,
		customerID,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Username, &c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.Address, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("lock customer: %w", err)
	}

	return &c, nil
}

func (t *pgxTx) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	return t.scanProduct(t.tx.QueryRow(ctx,
		`SELECT id, code, name, price, inventory FROM products WHERE code = $1`,
		code,
	))
}

func (t *pgxTx) GetProductByID(ctx context.Context, productID int64) (*model.Product, error) {
	return t.scanProduct(t.tx.QueryRow(ctx,
		`SELECT id, code, name, price, inventory FROM products WHERE id = $1`,
		productID,
	))
}

func (t *pgxTx) scanProduct(row pgx.Row) (*model.Product, error) {
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

func (t *pgxTx) IncreaseInventory(ctx context.Context, productID, amount int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE products SET inventory = inventory + $2 WHERE id = $1`,
		productID, amount,
	)
	if err != nil {
		return fmt.Errorf("increase inventory: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DecreaseInventory уменьшает запас товара условным обновлением:
// при нехватке запаса строка не изменяется и возвращается ErrInventoryShortage.
func (t *pgxTx) DecreaseInventory(ctx context.Context, productID, amount int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE products SET inventory = inventory - $2 WHERE id = $1 AND inventory >= $2`,
		productID, amount,
	)
	if err != nil {
		return fmt.Errorf("decrease inventory: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInventoryShortage
	}
	return nil
}

func (t *pgxTx) Deposit(ctx context.Context, customerID, amount int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE customers SET balance = balance + $2 WHERE id = $1`,
		customerID, amount,
	)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// Spend списывает сумму с баланса условным обновлением: при нехватке средств
// строка не изменяется и возвращается ErrInsufficientBalance.
func (t *pgxTx) Spend(ctx context.Context, customerID, amount int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE customers SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		customerID, amount,
	)
	if err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (t *pgxTx) GetOpenOrder(ctx context.Context, customerID int64) (*model.Order, error) {
	return t.scanOrder(t.tx.QueryRow(ctx,
		`SELECT id, customer_id, status, total_price, created_at
		 FROM orders
		 WHERE customer_id = $1 AND status = $2`,
		customerID, string(model.OrderStatusShopping),
	))
}

func (t *pgxTx) CreateOrder(ctx context.Context, customerID int64) (*model.Order, error) {
	order, err := t.scanOrder(t.tx.QueryRow(ctx,
		`INSERT INTO orders (customer_id, status)
		 VALUES ($1, $2)
		 RETURNING id, customer_id, status, total_price, created_at`,
		customerID, string(model.OrderStatusShopping),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrPendingOrder
		}
		return nil, err
	}
	return order, nil
}

func (t *pgxTx) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return t.scanOrder(t.tx.QueryRow(ctx,
		`SELECT id, customer_id, status, total_price, created_at
		 FROM orders
		 WHERE id = $1`,
		orderID,
	))
}

func (t *pgxTx) scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &status, &o.TotalPrice, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (t *pgxTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`,
		orderID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgxTx) AddOrderTotal(ctx context.Context, orderID, delta int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE orders SET total_price = total_price + $2 WHERE id = $1`,
		orderID, delta,
	)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgxTx) GetOrderRows(ctx context.Context, orderID int64) ([]model.OrderRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT r.product_id, p.code, p.name, p.price, r.amount
		 FROM order_rows r
		 JOIN products p ON p.id = r.product_id
		 WHERE r.order_id = $1
		 ORDER BY r.product_id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order rows: %w", err)
	}
	defer rows.Close()

	var res []model.OrderRow
	for rows.Next() {
		var r model.OrderRow
		if err := rows.Scan(&r.ProductID, &r.Code, &r.Name, &r.Price, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		res = append(res, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (t *pgxTx) GetOrderRowAmount(ctx context.Context, orderID, productID int64) (int64, error) {
	var amount int64
	err := t.tx.QueryRow(ctx,
		`SELECT amount FROM order_rows WHERE order_id = $1 AND product_id = $2`,
		orderID, productID,
	).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRowNotFound
		}
		return 0, fmt.Errorf("select order row: %w", err)
	}
	return amount, nil
}

func (t *pgxTx) InsertOrderRow(ctx context.Context, orderID, productID, amount int64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_rows (order_id, product_id, amount) VALUES ($1, $2, $3)`,
		orderID, productID, amount,
	)
	if err != nil {
		return fmt.Errorf("insert order row: %w", err)
	}
	return nil
}

func (t *pgxTx) UpdateOrderRowAmount(ctx context.Context, orderID, productID, amount int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE order_rows SET amount = $3 WHERE order_id = $1 AND product_id = $2`,
		orderID, productID, amount,
	)
	if err != nil {
		return fmt.Errorf("update order row: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (t *pgxTx) DeleteOrderRow(ctx context.Context, orderID, productID int64) error {
	cmdTag, err := t.tx.Exec(ctx,
		`DELETE FROM order_rows WHERE order_id = $1 AND product_id = $2`,
		orderID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete order row: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}
