// Package model содержит доменные сущности маркетплейса.
package model

import "time"

// Product представляет товар каталога с конечным запасом на складе.
type Product struct {
	ID        int64
	Code      string
	Name      string
	Price     int64
	Inventory int64
}

// Customer представляет покупателя с денежным балансом.
type Customer struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	Address      string
	Balance      int64
	CreatedAt    time.Time
}

// OrderStatus описывает статус заказа в жизненном цикле корзины.
type OrderStatus string

const (
	OrderStatusShopping  OrderStatus = "shopping"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusSent      OrderStatus = "sent"
)

// Order описывает заказ покупателя: корзину в статусе shopping либо
// уже оформленный заказ. TotalPrice всегда равен сумме amount*price по строкам заказа.
type Order struct {
	ID         int64
	CustomerID int64
	Status     OrderStatus
	TotalPrice int64
	CreatedAt  time.Time
	Rows       []OrderRow
}

// OrderRow представляет строку заказа: товар и количество.
type OrderRow struct {
	ProductID int64
	Code      string
	Name      string
	Price     int64
	Amount    int64
}

// CartItem представляет позицию корзины в ответе API.
type CartItem struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
	Amount int64  `json:"amount"`
}

// Cart представляет снимок корзины покупателя.
type Cart struct {
	OrderID    int64
	Status     OrderStatus
	CreatedAt  time.Time
	Items      []CartItem
	TotalPrice int64
}

// ItemError описывает ошибку обработки одной позиции пакетной операции.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
