package service

import (
	"context"
	"errors"

	"github.com/mmeshcher/market-system/internal/model"
	"github.com/mmeshcher/market-system/internal/repository"
)

// Item описывает позицию пакетной операции добавления или удаления.
// Amount == nil при удалении означает удаление всей строки.
type Item struct {
	Code   string
	Amount *int64
}

// Cart возвращает корзину покупателя, создавая открытый заказ при его отсутствии.
func (s *Service) Cart(ctx context.Context, customerID int64) (*model.Cart, error) {
	var cart *model.Cart

	err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockCustomer(ctx, customerID); err != nil {
			return err
		}

		order, err := s.openOrder(ctx, tx, customerID)
		if err != nil {
			return err
		}

		cart, err = buildCart(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// AddItems добавляет позиции в корзину покупателя. Каждая позиция
// обрабатывается в собственной транзакции: ошибка одной позиции не
// отменяет остальные и собирается в список ошибок.
func (s *Service) AddItems(ctx context.Context, customerID int64, items []Item) (*model.Cart, []model.ItemError, error) {
	return s.applyItems(ctx, customerID, items, s.addItem)
}

// RemoveItems удаляет позиции из корзины покупателя с той же пакетной
// семантикой, что и AddItems.
func (s *Service) RemoveItems(ctx context.Context, customerID int64, items []Item) (*model.Cart, []model.ItemError, error) {
	return s.applyItems(ctx, customerID, items, s.removeItem)
}

func (s *Service) applyItems(ctx context.Context, customerID int64, items []Item, apply func(ctx context.Context, tx repository.Tx, order *model.Order, item Item) error) (*model.Cart, []model.ItemError, error) {
	var itemErrors []model.ItemError

	for _, item := range items {
		item := item
		err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockCustomer(ctx, customerID); err != nil {
				return err
			}

			order, err := s.openOrder(ctx, tx, customerID)
			if err != nil {
				return err
			}

			return apply(ctx, tx, order, item)
		})
		if err != nil {
			if !isItemError(err) {
				return nil, nil, err
			}
			itemErrors = append(itemErrors, model.ItemError{Code: item.Code, Message: err.Error()})
		}
	}

	cart, err := s.Cart(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}

	return cart, itemErrors, nil
}

func (s *Service) addItem(ctx context.Context, tx repository.Tx, order *model.Order, item Item) error {
	if order.Status != model.OrderStatusShopping {
		return repository.ErrOrderNotOpen
	}
	if item.Amount == nil || *item.Amount <= 0 {
		return repository.ErrInvalidAmount
	}
	amount := *item.Amount

	p, err := tx.GetProductByCode(ctx, item.Code)
	if err != nil {
		return err
	}

	// Запас при добавлении не резервируется: количество лишь проверяется
	// против текущего запаса, окончательная проверка происходит в submit.
	existing, err := tx.GetOrderRowAmount(ctx, order.ID, p.ID)
	switch {
	case errors.Is(err, repository.ErrRowNotFound):
		if amount > p.Inventory {
			return repository.ErrInventoryShortage
		}
		if err := tx.InsertOrderRow(ctx, order.ID, p.ID, amount); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if existing+amount > p.Inventory {
			return repository.ErrInventoryShortage
		}
		if err := tx.UpdateOrderRowAmount(ctx, order.ID, p.ID, existing+amount); err != nil {
			return err
		}
	}

	return tx.AddOrderTotal(ctx, order.ID, amount*p.Price)
}

func (s *Service) removeItem(ctx context.Context, tx repository.Tx, order *model.Order, item Item) error {
	if order.Status != model.OrderStatusShopping {
		return repository.ErrOrderNotOpen
	}

	p, err := tx.GetProductByCode(ctx, item.Code)
	if err != nil {
		return err
	}

	existing, err := tx.GetOrderRowAmount(ctx, order.ID, p.ID)
	if err != nil {
		return err
	}

	amount := existing
	if item.Amount != nil {
		amount = *item.Amount
		if amount <= 0 {
			return repository.ErrInvalidAmount
		}
		if amount > existing {
			return repository.ErrNotEnoughInRow
		}
	}

	// Строка с нулевым остатком удаляется в рамках той же операции.
	if amount == existing {
		if err := tx.DeleteOrderRow(ctx, order.ID, p.ID); err != nil {
			return err
		}
	} else {
		if err := tx.UpdateOrderRowAmount(ctx, order.ID, p.ID, existing-amount); err != nil {
			return err
		}
	}

	return tx.AddOrderTotal(ctx, order.ID, -amount*p.Price)
}

// Submit оформляет открытую корзину покупателя: списывает запас всех товаров
// и деньги с баланса единой транзакцией и переводит заказ в статус submitted.
// Любая ошибка откатывает все изменения.
func (s *Service) Submit(ctx context.Context, customerID int64) (*model.Cart, error) {
	var cart *model.Cart

	err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
		customer, err := tx.LockCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		order, err := s.openOrder(ctx, tx, customerID)
		if err != nil {
			return err
		}

		rows, err := tx.GetOrderRows(ctx, order.ID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return repository.ErrEmptyOrder
		}

		if order.TotalPrice > customer.Balance {
			return repository.ErrInsufficientBalance
		}

		// Запас перепроверяется по живому значению: с момента добавления
		// его могли выкупить из других корзин.
		for _, row := range rows {
			if err := tx.DecreaseInventory(ctx, row.ProductID, row.Amount); err != nil {
				return err
			}
		}

		if err := tx.Spend(ctx, customerID, order.TotalPrice); err != nil {
			return err
		}

		if err := tx.SetOrderStatus(ctx, order.ID, model.OrderStatusSubmitted); err != nil {
			return err
		}

		order.Status = model.OrderStatusSubmitted
		cart, err = buildCart(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// Cancel отменяет оформленный заказ: возвращает запас всех товаров на склад
// и деньги на баланс покупателя, точная инверсия Submit.
func (s *Service) Cancel(ctx context.Context, orderID int64) (*model.Cart, error) {
	return s.finalizeOrder(ctx, orderID, model.OrderStatusCanceled)
}

// Send помечает оформленный заказ отправленным. Ресурсы не перемещаются.
func (s *Service) Send(ctx context.Context, orderID int64) (*model.Cart, error) {
	return s.finalizeOrder(ctx, orderID, model.OrderStatusSent)
}

func (s *Service) finalizeOrder(ctx context.Context, orderID int64, target model.OrderStatus) (*model.Cart, error) {
	var cart *model.Cart

	err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		// Блокировка покупателя первой сохраняет общий порядок блокировок,
		// после неё статус заказа перечитывается.
		if _, err := tx.LockCustomer(ctx, order.CustomerID); err != nil {
			return err
		}

		order, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderStatusSubmitted {
			return repository.ErrOrderNotSubmitted
		}

		if target == model.OrderStatusCanceled {
			rows, err := tx.GetOrderRows(ctx, order.ID)
			if err != nil {
				return err
			}

			for _, row := range rows {
				if err := tx.IncreaseInventory(ctx, row.ProductID, row.Amount); err != nil {
					return err
				}
			}

			if err := tx.Deposit(ctx, order.CustomerID, order.TotalPrice); err != nil {
				return err
			}
		}

		if err := tx.SetOrderStatus(ctx, order.ID, target); err != nil {
			return err
		}

		order.Status = target
		cart, err = buildCart(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// OrderSnapshot возвращает снимок заказа по идентификатору.
func (s *Service) OrderSnapshot(ctx context.Context, orderID int64) (*model.Cart, error) {
	var cart *model.Cart

	err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		cart, err = buildCart(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// openOrder возвращает открытый заказ покупателя, создавая его при отсутствии.
// Вызывается только под блокировкой строки покупателя, поэтому параллельные
// вызовы не создают две открытые корзины.
func (s *Service) openOrder(ctx context.Context, tx repository.Tx, customerID int64) (*model.Order, error) {
	order, err := tx.GetOpenOrder(ctx, customerID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}
	return tx.CreateOrder(ctx, customerID)
}

func buildCart(ctx context.Context, tx repository.Tx, order *model.Order) (*model.Cart, error) {
	rows, err := tx.GetOrderRows(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	items := make([]model.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, model.CartItem{
			Code:   row.Code,
			Name:   row.Name,
			Price:  row.Price,
			Amount: row.Amount,
		})
	}

	return &model.Cart{
		OrderID:    order.ID,
		Status:     order.Status,
		CreatedAt:  order.CreatedAt,
		Items:      items,
		TotalPrice: order.TotalPrice,
	}, nil
}

// isItemError сообщает, относится ли ошибка к одной позиции пакетной
// операции. Прочие ошибки считаются инфраструктурными и прерывают пакет.
func isItemError(err error) bool {
	for _, known := range []error{
		repository.ErrInvalidAmount,
		repository.ErrInventoryShortage,
		repository.ErrNotEnoughInRow,
		repository.ErrOrderNotOpen,
		repository.ErrProductNotFound,
		repository.ErrRowNotFound,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
