// Package client предоставляет HTTP-клиент киоска к API сервиса Greenfill Hub:
// вход и регистрацию пользователей и журнал наливов.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/mmeshcher/greenfill-hub/internal/model"
)

var (
	// ErrUnauthorized возвращается, если токен отсутствует, просрочен или отозван.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials возвращается при любой неудаче входа.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConfigured возвращается, если адрес сервиса не задан.
	ErrNotConfigured = errors.New("client not configured")
)

// APIError описывает ответ сервиса с кодом ошибки.
type APIError struct {
	Status    int
	Message   string
	Shortfall int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client инкапсулирует HTTP-взаимодействие киоска с сервисом.
// Текущая сессия хранится в памяти и защищена мьютексом.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	session *model.Session
}

// NewClient создаёт клиент для сервиса по адресу baseURL (включая префикс API).
func NewClient(baseURL, anonKey string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = 10 * time.Second

	return &Client{
		baseURL:    base,
		anonKey:    anonKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Shortfall int64  `json:"shortfall"`
}

// do выполняет JSON-запрос. Ответы с кодом не 2xx возвращаются как *APIError,
// 401 дополнительно оборачивает ErrUnauthorized.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	if eb.Error == "" {
		eb.Error = http.StatusText(resp.StatusCode)
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: eb.Error, Shortfall: eb.Shortfall}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	}
	return apiErr
}
