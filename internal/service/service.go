// Package service реализует бизнес-логику сервиса маркетплейса.
package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/market-system/internal/model"
	"github.com/mmeshcher/market-system/internal/repository"
	"github.com/mmeshcher/market-system/internal/validation"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidProfile возвращается при некорректных полях профиля покупателя.
var ErrInvalidProfile = errors.New("invalid profile data")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InTransaction(ctx context.Context, fn func(tx repository.Tx) error) error

	CreateProduct(ctx context.Context, code, name string, price, inventory int64) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]model.Product, error)

	CreateCustomer(ctx context.Context, c *model.Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	GetCustomerByUsername(ctx context.Context, username string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	SearchCustomers(ctx context.Context, keyword string) ([]model.Customer, error)
	UpdateCustomerProfile(ctx context.Context, c *model.Customer) error
}

// Service содержит бизнес-логику сервиса маркетплейса.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateProduct создаёт новый товар каталога.
func (s *Service) CreateProduct(ctx context.Context, code, name string, price, inventory int64) (int64, error) {
	if !validation.IsValidCode(code) || name == "" || price < 0 || inventory < 0 {
		return 0, repository.ErrInvalidProduct
	}
	return s.repo.CreateProduct(ctx, code, name, price, inventory)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts возвращает все товары каталога.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// SearchProducts возвращает товары по вхождению ключевого слова в название.
func (s *Service) SearchProducts(ctx context.Context, keyword string) ([]model.Product, error) {
	return s.repo.SearchProducts(ctx, keyword)
}

// AdjustInventory изменяет запас товара на знаковую величину.
// Уменьшение запаса ниже нуля завершается ошибкой ErrInventoryShortage.
func (s *Service) AdjustInventory(ctx context.Context, productID, amount int64) (*model.Product, error) {
	var updated *model.Product

	err := s.repo.InTransaction(ctx, func(tx repository.Tx) error {
		p, err := tx.GetProductByID(ctx, productID)
		if err != nil {
			return err
		}

		if amount >= 0 {
			err = tx.IncreaseInventory(ctx, p.ID, amount)
		} else {
			err = tx.DecreaseInventory(ctx, p.ID, -amount)
		}
		if err != nil {
			return err
		}

		updated, err = tx.GetProductByID(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// RegisterInput содержит данные регистрации нового покупателя.
type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Address   string
}

// RegisterCustomer регистрирует нового покупателя с хэшированием пароля.
func (s *Service) RegisterCustomer(ctx context.Context, in RegisterInput) (int64, error) {
	if !validation.IsValidUsername(in.Username) || in.Password == "" || !validation.IsValidPhone(in.Phone) {
		return 0, ErrInvalidProfile
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	return s.repo.CreateCustomer(ctx, &model.Customer{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Address:      in.Address,
	})
}

// Authenticate проверяет логин и пароль покупателя и возвращает его идентификатор.
func (s *Service) Authenticate(ctx context.Context, username, password string) (int64, error) {
	c, err := s.repo.GetCustomerByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return c.ID, nil
}

// GetCustomer возвращает покупателя по идентификатору.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers возвращает всех покупателей.
func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// SearchCustomers возвращает покупателей по ключевому слову.
func (s *Service) SearchCustomers(ctx context.Context, keyword string) ([]model.Customer, error) {
	return s.repo.SearchCustomers(ctx, keyword)
}

// CustomerUpdate содержит подмножество редактируемых полей покупателя.
// Поля со значением nil остаются без изменений.
type CustomerUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	Balance   *int64
}

// UpdateCustomer применяет частичное обновление профиля покупателя.
// Имя пользователя, пароль и идентификатор через этот путь не изменяются.
func (s *Service) UpdateCustomer(ctx context.Context, id int64, upd CustomerUpdate) (*model.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		if !validation.IsValidPhone(*upd.Phone) {
			return nil, ErrInvalidProfile
		}
		c.Phone = *upd.Phone
	}
	if upd.Address != nil {
		c.Address = *upd.Address
	}
	if upd.Balance != nil {
		if *upd.Balance < 0 {
			return nil, ErrInvalidProfile
		}
		c.Balance = *upd.Balance
	}

	if err := s.repo.UpdateCustomerProfile(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}
