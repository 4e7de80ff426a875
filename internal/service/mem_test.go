package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/market-system/internal/model"
	"github.com/mmeshcher/market-system/internal/repository"
)

// memRepo — репозиторий в памяти для тестов движка заказов. InTransaction
// работает на глубокой копии состояния и публикует её только при успехе,
// воспроизводя откат транзакции БД.
type memRepo struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	products    map[int64]*model.Product
	customers   map[int64]*model.Customer
	orders      map[int64]*model.Order
	rows        map[int64]map[int64]int64
	nextProduct int64
	nextOrder   int64
	nextCust    int64
}

func newMemRepo() *memRepo {
	return &memRepo{state: &memState{
		products:  map[int64]*model.Product{},
		customers: map[int64]*model.Customer{},
		orders:    map[int64]*model.Order{},
		rows:      map[int64]map[int64]int64{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		products:    make(map[int64]*model.Product, len(s.products)),
		customers:   make(map[int64]*model.Customer, len(s.customers)),
		orders:      make(map[int64]*model.Order, len(s.orders)),
		rows:        make(map[int64]map[int64]int64, len(s.rows)),
		nextProduct: s.nextProduct,
		nextOrder:   s.nextOrder,
		nextCust:    s.nextCust,
	}
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, cu := range s.customers {
		cc := *cu
		c.customers[id] = &cc
	}
	for id, o := range s.orders {
		co := *o
		c.orders[id] = &co
	}
	for orderID, rows := range s.rows {
		cr := make(map[int64]int64, len(rows))
		for pid, amount := range rows {
			cr[pid] = amount
		}
		c.rows[orderID] = cr
	}
	return c
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) InTransaction(ctx context.Context, fn func(tx repository.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memRepo) addProduct(code, name string, price, inventory int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.nextProduct++
	id := r.state.nextProduct
	r.state.products[id] = &model.Product{ID: id, Code: code, Name: name, Price: price, Inventory: inventory}
	return id
}

func (r *memRepo) addCustomer(username string, balance int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.nextCust++
	id := r.state.nextCust
	r.state.customers[id] = &model.Customer{ID: id, Username: username, Balance: balance}
	return id
}

func (r *memRepo) product(id int64) model.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.state.products[id]
}

func (r *memRepo) setInventory(id, inventory int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.products[id].Inventory = inventory
}

func (r *memRepo) customer(id int64) model.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.state.customers[id]
}

func (r *memRepo) order(id int64) model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.state.orders[id]
}

func (r *memRepo) shoppingOrders(customerID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.state.orders {
		if o.CustomerID == customerID && o.Status == model.OrderStatusShopping {
			n++
		}
	}
	return n
}

// totalsConsistent проверяет инвариант: total_price каждого заказа равен
// сумме amount*price по его строкам, а запасы и балансы неотрицательны.
func (r *memRepo) totalsConsistent() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, o := range r.state.orders {
		var sum int64
		for pid, amount := range r.state.rows[id] {
			sum += amount * r.state.products[pid].Price
		}
		if sum != o.TotalPrice {
			return fmt.Errorf("order %d: total_price %d, rows sum %d", id, o.TotalPrice, sum)
		}
	}
	for id, p := range r.state.products {
		if p.Inventory < 0 {
			return fmt.Errorf("product %d: negative inventory %d", id, p.Inventory)
		}
	}
	for id, c := range r.state.customers {
		if c.Balance < 0 {
			return fmt.Errorf("customer %d: negative balance %d", id, c.Balance)
		}
	}
	return nil
}

// Заглушки CRUD-части контракта Repository: тесты движка её не используют.

func (r *memRepo) CreateProduct(ctx context.Context, code, name string, price, inventory int64) (int64, error) {
	return r.addProduct(code, name, price, inventory), nil
}

func (r *memRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.state.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) ListProducts(ctx context.Context) ([]model.Product, error)   { return nil, nil }
func (r *memRepo) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	return nil, nil
}

func (r *memRepo) CreateCustomer(ctx context.Context, c *model.Customer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.state.customers {
		if existing.Username == c.Username {
			return 0, repository.ErrCustomerExists
		}
	}
	r.state.nextCust++
	cc := *c
	cc.ID = r.state.nextCust
	if cc.Balance == 0 {
		cc.Balance = 20000
	}
	r.state.customers[cc.ID] = &cc
	return cc.ID, nil
}

func (r *memRepo) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.state.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	cc := *c
	return &cc, nil
}

func (r *memRepo) GetCustomerByUsername(ctx context.Context, username string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.state.customers {
		if c.Username == username {
			cc := *c
			return &cc, nil
		}
	}
	return nil, repository.ErrCustomerNotFound
}

func (r *memRepo) ListCustomers(ctx context.Context) ([]model.Customer, error) { return nil, nil }
func (r *memRepo) SearchCustomers(ctx context.Context, keyword string) ([]model.Customer, error) {
	return nil, nil
}

func (r *memRepo) UpdateCustomerProfile(ctx context.Context, c *model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.state.customers[c.ID]
	if !ok {
		return repository.ErrCustomerNotFound
	}
	existing.Email = c.Email
	existing.FirstName = c.FirstName
	existing.LastName = c.LastName
	existing.Phone = c.Phone
	existing.Address = c.Address
	existing.Balance = c.Balance
	return nil
}

// memTx реализует repository.Tx над копией состояния.
type memTx struct {
	state *memState
}

func (t *memTx) LockCustomer(ctx context.Context, customerID int64) (*model.Customer, error) {
	c, ok := t.state.customers[customerID]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	cc := *c
	return &cc, nil
}

func (t *memTx) GetProductByCode(ctx context.Context, code string) (*model.Product, error) {
	for _, p := range t.state.products {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (t *memTx) GetProductByID(ctx context.Context, productID int64) (*model.Product, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) IncreaseInventory(ctx context.Context, productID, amount int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Inventory += amount
	return nil
}

func (t *memTx) DecreaseInventory(ctx context.Context, productID, amount int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return repository.ErrProductNotFound
	}
	if p.Inventory < amount {
		return repository.ErrInventoryShortage
	}
	p.Inventory -= amount
	return nil
}

func (t *memTx) Deposit(ctx context.Context, customerID, amount int64) error {
	c, ok := t.state.customers[customerID]
	if !ok {
		return repository.ErrCustomerNotFound
	}
	c.Balance += amount
	return nil
}

func (t *memTx) Spend(ctx context.Context, customerID, amount int64) error {
	c, ok := t.state.customers[customerID]
	if !ok {
		return repository.ErrCustomerNotFound
	}
	if c.Balance < amount {
		return repository.ErrInsufficientBalance
	}
	c.Balance -= amount
	return nil
}

func (t *memTx) GetOpenOrder(ctx context.Context, customerID int64) (*model.Order, error) {
	for _, o := range t.state.orders {
		if o.CustomerID == customerID && o.Status == model.OrderStatusShopping {
			co := *o
			return &co, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (t *memTx) CreateOrder(ctx context.Context, customerID int64) (*model.Order, error) {
	for _, o := range t.state.orders {
		if o.CustomerID == customerID && o.Status == model.OrderStatusShopping {
			return nil, repository.ErrPendingOrder
		}
	}
	t.state.nextOrder++
	o := &model.Order{
		ID:         t.state.nextOrder,
		CustomerID: customerID,
		Status:     model.OrderStatusShopping,
	}
	t.state.orders[o.ID] = o
	t.state.rows[o.ID] = map[int64]int64{}
	co := *o
	return &co, nil
}

func (t *memTx) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	o, ok := t.state.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	co := *o
	return &co, nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (t *memTx) AddOrderTotal(ctx context.Context, orderID, delta int64) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.TotalPrice += delta
	return nil
}

func (t *memTx) GetOrderRows(ctx context.Context, orderID int64) ([]model.OrderRow, error) {
	rows := t.state.rows[orderID]

	var productIDs []int64
	for pid := range rows {
		productIDs = append(productIDs, pid)
	}
	for i := 0; i < len(productIDs); i++ {
		for j := i + 1; j < len(productIDs); j++ {
			if productIDs[j] < productIDs[i] {
				productIDs[i], productIDs[j] = productIDs[j], productIDs[i]
			}
		}
	}

	var res []model.OrderRow
	for _, pid := range productIDs {
		p := t.state.products[pid]
		res = append(res, model.OrderRow{
			ProductID: pid,
			Code:      p.Code,
			Name:      p.Name,
			Price:     p.Price,
			Amount:    rows[pid],
		})
	}
	return res, nil
}

func (t *memTx) GetOrderRowAmount(ctx context.Context, orderID, productID int64) (int64, error) {
	amount, ok := t.state.rows[orderID][productID]
	if !ok {
		return 0, repository.ErrRowNotFound
	}
	return amount, nil
}

func (t *memTx) InsertOrderRow(ctx context.Context, orderID, productID, amount int64) error {
	if t.state.rows[orderID] == nil {
		t.state.rows[orderID] = map[int64]int64{}
	}
	t.state.rows[orderID][productID] = amount
	return nil
}

func (t *memTx) UpdateOrderRowAmount(ctx context.Context, orderID, productID, amount int64) error {
	if _, ok := t.state.rows[orderID][productID]; !ok {
		return repository.ErrRowNotFound
	}
	t.state.rows[orderID][productID] = amount
	return nil
}

func (t *memTx) DeleteOrderRow(ctx context.Context, orderID, productID int64) error {
	if _, ok := t.state.rows[orderID][productID]; !ok {
		return repository.ErrRowNotFound
	}
	delete(t.state.rows[orderID], productID)
	return nil
}
