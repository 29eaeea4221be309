// Package service реализует бизнес-логику сервиса Greenfill Hub.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/auth"
	"github.com/mmeshcher/greenfill-hub/internal/catalog"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/repository"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
)

var (
	// ErrInvalidCredentials возвращается при любой ошибке входа, чтобы не раскрывать, что именно неверно.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownVoucher возвращается для ваучера вне каталога.
	ErrUnknownVoucher = catalog.ErrUnknownVoucher
	// ErrPointsMismatch возвращается, если клиент указал стоимость ваучера, отличную от каталожной.
	ErrPointsMismatch = errors.New("points do not match voucher")
	// ErrUnknownBrand возвращается для бренда вне каталога.
	ErrUnknownBrand = errors.New("unknown brand")
	// ErrUnknownLocation возвращается для локации вне каталога.
	ErrUnknownLocation = errors.New("unknown location")
)

// rejectPassword выравнивает время ответа для неизвестного идентификатора.
var rejectPassword = auth.RejectPassword

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email, phone, passwordHash string) (uuid.UUID, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	AddRefill(ctx context.Context, rec model.RefillRecord, requestID *uuid.UUID) (int64, bool, error)
	GetRefillHistory(ctx context.Context, userID uuid.UUID) ([]model.RefillRecord, error)
	GetPointsSummary(ctx context.Context, userID uuid.UUID) (model.PointsSummary, error)
	CreateRedemption(ctx context.Context, userID uuid.UUID, email string, voucher model.Voucher) (int64, error)
}

// TokenIssuer выпускает bearer-токены.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, time.Time, error)
}

// Revoker отзывает токены при выходе.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// RefillInput содержит данные завершённого налива, присланные киоском.
type RefillInput struct {
	RequestID     *uuid.UUID
	Brand         string
	Volume        float64
	TotalPrice    decimal.Decimal
	Location      model.Location
	PaymentMethod model.PaymentMethod
}

// Service содержит бизнес-логику сервиса Greenfill Hub.
type Service struct {
	repo    Repository
	tokens  TokenIssuer
	revoker Revoker
}

// NewService создаёт сервис. revoker может быть nil: тогда выход только забывает токен на клиенте.
func NewService(repo Repository, tokens TokenIssuer, revoker Revoker) *Service {
	return &Service{
		repo:    repo,
		tokens:  tokens,
		revoker: revoker,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// SignUp регистрирует пользователя. Учётная запись подтверждается сразу.
// Пароль длиннее auth.MaxPasswordBytes байт отклоняется с auth.ErrPasswordTooLong.
func (s *Service) SignUp(ctx context.Context, email, phone, password string) (uuid.UUID, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := s.repo.CreateUser(ctx, email, phone, hash)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SignIn проверяет email или телефон и пароль и выпускает токен доступа.
func (s *Service) SignIn(ctx context.Context, identifier, password string) (*model.Session, error) {
	u, err := s.repo.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			rejectPassword(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	return &model.Session{
		UserID:      u.ID,
		Email:       u.Email,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

// SignOut отзывает токен до конца его срока действия.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if s.revoker == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.TokenID, time.Until(claims.ExpiresAt))
}

// GetProfile возвращает профиль пользователя.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// AddRefill записывает налив и начисляет баллы по сумме покупки.
// Баллы всегда считаются здесь, значение от клиента не принимается.
func (s *Service) AddRefill(ctx context.Context, userID uuid.UUID, email string, in RefillInput) (int64, error) {
	brand, ok := catalog.BrandByName(in.Brand)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBrand, in.Brand)
	}
	if !catalog.IsLocation(in.Location) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLocation, in.Location)
	}

	rec := model.RefillRecord{
		ID:            uuid.New(),
		UserID:        userID,
		Email:         email,
		Brand:         brand.Name,
		Volume:        in.Volume,
		TotalPrice:    in.TotalPrice,
		Location:      in.Location,
		PaymentMethod: in.PaymentMethod,
		RewardPoints:  rewards.PointsEarned(in.TotalPrice),
	}

	points, _, err := s.repo.AddRefill(ctx, rec, in.RequestID)
	if err != nil {
		return 0, err
	}
	return points, nil
}

// GetRefillHistory возвращает историю наливов и сводку по баллам.
func (s *Service) GetRefillHistory(ctx context.Context, userID uuid.UUID) ([]model.RefillRecord, model.PointsSummary, error) {
	history, err := s.repo.GetRefillHistory(ctx, userID)
	if err != nil {
		return nil, model.PointsSummary{}, err
	}

	summary, err := s.repo.GetPointsSummary(ctx, userID)
	if err != nil {
		return nil, model.PointsSummary{}, err
	}

	return history, summary, nil
}

// RedeemVoucher обменивает баллы на ваучер и возвращает ваучер и остаток баллов.
// pointsUsed необязателен; если указан, он должен совпадать с каталожной стоимостью.
func (s *Service) RedeemVoucher(ctx context.Context, userID uuid.UUID, email, voucherID string, pointsUsed int64) (*model.Voucher, int64, error) {
	v, ok := catalog.VoucherByID(voucherID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownVoucher, voucherID)
	}
	if pointsUsed != 0 && pointsUsed != v.PointsRequired {
		return nil, 0, ErrPointsMismatch
	}

	remaining, err := s.repo.CreateRedemption(ctx, userID, email, v)
	if err != nil {
		return nil, remaining, err
	}
	return &v, remaining, nil
}
