package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mmeshcher/market-system/internal/middleware"
	"github.com/mmeshcher/market-system/internal/model"
	"github.com/mmeshcher/market-system/internal/service"
)

const orderTimeLayout = "2006-01-02 15:04:05"

type cartResponse struct {
	ID         *int64            `json:"id,omitempty"`
	OrderTime  string            `json:"order_time,omitempty"`
	Status     string            `json:"status,omitempty"`
	TotalPrice int64             `json:"total_price"`
	Errors     []model.ItemError `json:"errors,omitempty"`
	Items      []model.CartItem  `json:"items"`
}

func newCartResponse(cart *model.Cart, itemErrors []model.ItemError, finalized bool) cartResponse {
	resp := cartResponse{
		TotalPrice: cart.TotalPrice,
		Errors:     itemErrors,
		Items:      cart.Items,
	}
	if resp.Items == nil {
		resp.Items = []model.CartItem{}
	}
	if finalized {
		id := cart.OrderID
		resp.ID = &id
		resp.OrderTime = cart.CreatedAt.Format(orderTimeLayout)
		resp.Status = string(cart.Status)
	}
	return resp
}

// GetCart возвращает корзину текущего покупателя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	cart, err := h.service.Cart(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCartResponse(cart, nil, false))
}

type itemRequest struct {
	Code   string `json:"code"`
	Amount *int64 `json:"amount"`
}

func toServiceItems(reqs []itemRequest) []service.Item {
	items := make([]service.Item, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, service.Item{Code: req.Code, Amount: req.Amount})
	}
	return items
}

// AddItems добавляет пакет позиций в корзину текущего покупателя.
// Позиции обрабатываются независимо; при любой ошибке возвращается статус 400
// вместе с итоговой корзиной и списком ошибок по позициям.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	h.applyItems(w, r, h.service.AddItems)
}

// RemoveItems удаляет пакет позиций из корзины текущего покупателя.
func (h *Handler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	h.applyItems(w, r, h.service.RemoveItems)
}

func (h *Handler) applyItems(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, customerID int64, items []service.Item) (*model.Cart, []model.ItemError, error)) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var reqs []itemRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, itemErrors, err := apply(r.Context(), customerID, toServiceItems(reqs))
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if len(itemErrors) > 0 {
		status = http.StatusBadRequest
	}

	h.writeJSON(w, status, newCartResponse(cart, itemErrors, false))
}

// Submit оформляет корзину текущего покупателя и возвращает снимок заказа.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	cart, err := h.service.Submit(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.OrdersSubmitted.Inc()
	}

	h.writeJSON(w, http.StatusOK, newCartResponse(cart, nil, true))
}

// GetOrder возвращает снимок заказа по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, err := h.service.OrderSnapshot(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCartResponse(cart, nil, true))
}

// CancelOrder отменяет оформленный заказ, возвращая запас и деньги.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.OrdersCanceled.Inc()
	}

	h.writeJSON(w, http.StatusOK, newCartResponse(cart, nil, true))
}

// SendOrder помечает оформленный заказ отправленным.
func (h *Handler) SendOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	cart, err := h.service.Send(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCartResponse(cart, nil, true))
}
