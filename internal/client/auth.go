package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/greenfill-hub/internal/model"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type userPayload struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type signUpResponse struct {
	Success bool        `json:"success"`
	User    userPayload `json:"user"`
}

type tokenRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        userPayload `json:"user"`
}

// SignUp регистрирует пользователя. Учётная запись подтверждается сразу, сессия не создаётся.
// Сообщение сервиса об ошибке передаётся вызывающему как есть в *APIError.
func (c *Client) SignUp(ctx context.Context, email, phone, password string) (uuid.UUID, error) {
	var resp signUpResponse
	err := c.do(ctx, http.MethodPost, "/signup", c.anonKey, signUpRequest{
		Email:    email,
		Phone:    phone,
		Password: password,
	}, &resp)
	if err != nil {
		return uuid.Nil, err
	}
	return resp.User.ID, nil
}

// SignIn выполняет вход по email или телефону и сохраняет сессию.
// Отказ сервиса всегда сводится к ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, identifier, password string) (*model.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", c.anonKey, tokenRequest{
		Identifier: identifier,
		Password:   password,
	}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token")
	}

	session := &model.Session{
		UserID:      resp.User.ID,
		Email:       resp.User.Email,
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.ExpiresAt,
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	copied := *session
	return &copied, nil
}

// SignOut забывает сессию и просит сервис отозвать токен.
// Сессия забывается даже при ошибке отзыва.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/logout", session.AccessToken, nil, nil)
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return err
	}
	return nil
}

// CurrentSession возвращает текущую сессию, если она есть и не истекла.
func (c *Client) CurrentSession() (*model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, false
	}
	if !c.session.ExpiresAt.IsZero() && !c.now().Before(c.session.ExpiresAt) {
		c.session = nil
		return nil, false
	}

	copied := *c.session
	return &copied, true
}
