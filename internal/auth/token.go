package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "greenfill-hub"

// ErrInvalidToken возвращается для подделанного, просроченного или нераспознанного токена.
var ErrInvalidToken = errors.New("invalid token")

// Claims содержит проверенное содержимое bearer-токена.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService выпускает и проверяет HS256 JWT.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService создаёт сервис токенов. При пустом секрете генерируется случайный ключ,
// и выданные токены перестают действовать после перезапуска.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	key := []byte(secret)
	if len(key) == 0 {
		key = []byte(rand.Text())
	}

	return &TokenService{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue выпускает токен доступа для пользователя.
func (s *TokenService) Issue(userID uuid.UUID, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse проверяет подпись и срок действия токена.
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	res := &Claims{
		UserID:  userID,
		Email:   claims.Email,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}

	return res, nil
}
