// Package handler содержит HTTP-обработчики API сервиса маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/market-system/internal/middleware"
	"github.com/mmeshcher/market-system/internal/model"
	"github.com/mmeshcher/market-system/internal/repository"
	"github.com/mmeshcher/market-system/internal/service"
	"github.com/mmeshcher/market-system/internal/telemetry"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateProduct(ctx context.Context, code, name string, price, inventory int64) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]model.Product, error)
	AdjustInventory(ctx context.Context, productID, amount int64) (*model.Product, error)

	RegisterCustomer(ctx context.Context, in service.RegisterInput) (int64, error)
	Authenticate(ctx context.Context, username, password string) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	SearchCustomers(ctx context.Context, keyword string) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, upd service.CustomerUpdate) (*model.Customer, error)

	Cart(ctx context.Context, customerID int64) (*model.Cart, error)
	AddItems(ctx context.Context, customerID int64, items []service.Item) (*model.Cart, []model.ItemError, error)
	RemoveItems(ctx context.Context, customerID int64, items []service.Item) (*model.Cart, []model.ItemError, error)
	Submit(ctx context.Context, customerID int64) (*model.Cart, error)
	Cancel(ctx context.Context, orderID int64) (*model.Cart, error)
	Send(ctx context.Context, orderID int64) (*model.Cart, error)
	OrderSnapshot(ctx context.Context, orderID int64) (*model.Cart, error)
}

// Handler реализует HTTP-обработчики API сервиса маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *telemetry.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        metrics,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError переводит ошибку движка в HTTP-статус. Неклассифицированные
// ошибки не раскрываются наружу.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCustomerNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrRowNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, repository.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
		message = err.Error()
	case errors.Is(err, repository.ErrInvalidAmount),
		errors.Is(err, repository.ErrInventoryShortage),
		errors.Is(err, repository.ErrEmptyOrder),
		errors.Is(err, repository.ErrNotEnoughInRow),
		errors.Is(err, repository.ErrInvalidProduct),
		errors.Is(err, service.ErrInvalidProfile):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, repository.ErrOrderNotOpen),
		errors.Is(err, repository.ErrOrderNotSubmitted),
		errors.Is(err, repository.ErrPendingOrder),
		errors.Is(err, repository.ErrProductExists),
		errors.Is(err, repository.ErrCustomerExists):
		status = http.StatusConflict
		message = err.Error()
	default:
		h.logger.Error("internal error", zap.Error(err))
	}

	h.writeJSON(w, status, messageResponse{Message: message})
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type productResponse struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Inventory int64  `json:"inventory"`
}

func newProductResponse(p *model.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Code:      p.Code,
		Name:      p.Name,
		Price:     p.Price,
		Inventory: p.Inventory,
	}
}

type createProductRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Inventory int64  `json:"inventory"`
}

// CreateProduct создаёт новый товар каталога.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateProduct(r.Context(), req.Code, req.Name, req.Price, req.Inventory)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GetProducts возвращает список товаров, при наличии параметра search —
// результат поиска по названию.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []model.Product
		err      error
	)

	if keyword := r.URL.Query().Get("search"); keyword != "" {
		products, err = h.service.SearchProducts(r.Context(), keyword)
	} else {
		products, err = h.service.ListProducts(r.Context())
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, newProductResponse(&products[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string][]productResponse{"products": resp})
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProductResponse(p))
}

type adjustInventoryRequest struct {
	Amount *int64 `json:"amount"`
}

// AdjustInventory изменяет запас товара на знаковую величину.
func (h *Handler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req adjustInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.AdjustInventory(r.Context(), id, *req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProductResponse(p))
}

type customerResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Balance   int64  `json:"balance"`
}

func newCustomerResponse(c *model.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		Balance:   c.Balance,
	}
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Register регистрирует нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.RegisterCustomer(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, id)
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию покупателя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, customerID)
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logged in"})
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// GetCustomers возвращает список покупателей, при наличии параметра search —
// результат поиска по адресу и имени.
func (h *Handler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	var (
		customers []model.Customer
		err       error
	)

	if keyword := r.URL.Query().Get("search"); keyword != "" {
		customers, err = h.service.SearchCustomers(r.Context(), keyword)
	} else {
		customers, err = h.service.ListCustomers(r.Context())
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]customerResponse, 0, len(customers))
	for i := range customers {
		resp = append(resp, newCustomerResponse(&customers[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string][]customerResponse{"customers": resp})
}

// GetCustomer возвращает покупателя по идентификатору.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCustomerResponse(c))
}

type editCustomerRequest struct {
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	ID        *int64  `json:"id"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	Balance   *int64  `json:"balance"`
}

// EditCustomer применяет частичное обновление профиля покупателя.
// Попытка изменить имя пользователя, пароль или идентификатор отклоняется.
func (h *Handler) EditCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req editCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username != nil || req.Password != nil || req.ID != nil {
		h.writeJSON(w, http.StatusForbidden, messageResponse{Message: "cannot edit customer's identity and credentials"})
		return
	}

	c, err := h.service.UpdateCustomer(r.Context(), id, service.CustomerUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
		Balance:   req.Balance,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCustomerResponse(c))
}

// Profile возвращает профиль текущего покупателя.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	c, err := h.service.GetCustomer(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newCustomerResponse(c))
}
