package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenfill-hub/internal/auth"
	"github.com/mmeshcher/greenfill-hub/internal/middleware"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/repository"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
	"github.com/mmeshcher/greenfill-hub/internal/service"
)

const (
	testPrefix  = "/api/greenfill"
	testAnonKey = "anon-key"
)

type stubService struct {
	signUpID  uuid.UUID
	signUpErr error

	session   *model.Session
	signInErr error

	signedOut bool

	refillInput  service.RefillInput
	refillPoints int64
	refillErr    error

	history    []model.RefillRecord
	summary    model.PointsSummary
	historyErr error

	voucher   *model.Voucher
	remaining int64
	redeemErr error
}

func (s *stubService) SignUp(ctx context.Context, email, phone, password string) (uuid.UUID, error) {
	return s.signUpID, s.signUpErr
}

func (s *stubService) SignIn(ctx context.Context, identifier, password string) (*model.Session, error) {
	return s.session, s.signInErr
}

func (s *stubService) SignOut(ctx context.Context, claims *auth.Claims) error {
	s.signedOut = true
	return nil
}

func (s *stubService) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return &model.Profile{UserID: userID, Email: "a@b.c"}, nil
}

func (s *stubService) AddRefill(ctx context.Context, userID uuid.UUID, email string, in service.RefillInput) (int64, error) {
	s.refillInput = in
	return s.refillPoints, s.refillErr
}

func (s *stubService) GetRefillHistory(ctx context.Context, userID uuid.UUID) ([]model.RefillRecord, model.PointsSummary, error) {
	return s.history, s.summary, s.historyErr
}

func (s *stubService) RedeemVoucher(ctx context.Context, userID uuid.UUID, email, voucherID string, pointsUsed int64) (*model.Voucher, int64, error) {
	return s.voucher, s.remaining, s.redeemErr
}

type testServer struct {
	router http.Handler
	tokens *auth.TokenService
}

func newTestServer(t *testing.T, svc Service) *testServer {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	tokens := auth.NewTokenService("test-secret", time.Hour)
	h := NewHandler(svc, logger, middleware.NewAuthMiddleware(tokens, nil, logger), testAnonKey, testPrefix)

	return &testServer{router: h.SetupRouter(), tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, testPrefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) userToken(t *testing.T) string {
	t.Helper()

	token, _, err := s.tokens.Issue(uuid.New(), "a@b.c")
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubService{})

	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestSignUp(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		svc        *stubService
		bearer     string
		body       any
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			svc:        &stubService{signUpID: id},
			bearer:     testAnonKey,
			body:       signUpRequest{Email: "a@b.c", Phone: "0123", Password: "secret1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing password",
			svc:        &stubService{},
			bearer:     testAnonKey,
			body:       signUpRequest{Email: "a@b.c"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Email and password are required",
		},
		{
			name:       "duplicate email",
			svc:        &stubService{signUpErr: repository.ErrUserExists},
			bearer:     testAnonKey,
			body:       signUpRequest{Email: "a@b.c", Password: "secret1"},
			wantStatus: http.StatusBadRequest,
			wantError:  "A user with this email address has already been registered",
		},
		{
			name:       "password too long",
			svc:        &stubService{signUpErr: fmt.Errorf("sign up: %w", auth.ErrPasswordTooLong)},
			bearer:     testAnonKey,
			body:       signUpRequest{Email: "a@b.c", Password: strings.Repeat("x", 80)},
			wantStatus: http.StatusBadRequest,
			wantError:  "Password must be at most 72 bytes",
		},
		{
			name:       "without anon key",
			svc:        &stubService{},
			body:       signUpRequest{Email: "a@b.c", Password: "secret1"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.svc)

			rec := s.do(t, http.MethodPost, "/signup", tt.bearer, tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, id.String(), body["user"].(map[string]any)["id"])
		})
	}
}

func TestSignUp_TooLongPasswordWithRealService(t *testing.T) {
	s := newTestServer(t, service.NewService(nil, nil, nil))

	rec := s.do(t, http.MethodPost, "/signup", testAnonKey,
		signUpRequest{Email: "a@b.c", Phone: "0123", Password: strings.Repeat("x", 80)})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password must be at most 72 bytes", decodeBody(t, rec)["error"])
}

func TestToken(t *testing.T) {
	t.Run("invalid credentials", func(t *testing.T) {
		s := newTestServer(t, &stubService{signInErr: service.ErrInvalidCredentials})

		rec := s.do(t, http.MethodPost, "/token", testAnonKey, tokenRequest{Identifier: "a@b.c", Password: "wrong"})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])
	})

	t.Run("email alias", func(t *testing.T) {
		userID := uuid.New()
		s := newTestServer(t, &stubService{session: &model.Session{
			UserID:      userID,
			Email:       "a@b.c",
			AccessToken: "token",
			ExpiresAt:   time.Now().Add(time.Hour),
		}})

		rec := s.do(t, http.MethodPost, "/token", testAnonKey, tokenRequest{Email: "a@b.c", Password: "secret1"})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "token", body["accessToken"])
		assert.Equal(t, userID.String(), body["user"].(map[string]any)["id"])
	})

	t.Run("missing identifier", func(t *testing.T) {
		s := newTestServer(t, &stubService{})

		rec := s.do(t, http.MethodPost, "/token", testAnonKey, tokenRequest{Password: "secret1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(t, svc)

	rec := s.do(t, http.MethodPost, "/logout", s.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.signedOut)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, &stubService{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/profile"},
		{http.MethodPost, "/add-refill"},
		{http.MethodGet, "/refill-history"},
		{http.MethodPost, "/redeem-voucher"},
		{http.MethodPost, "/logout"},
	} {
		rec := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
		assert.Equal(t, "No authorization token provided", decodeBody(t, rec)["error"], route.path)
	}
}

func TestProfile(t *testing.T) {
	s := newTestServer(t, &stubService{})

	rec := s.do(t, http.MethodGet, "/profile", s.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)["profile"].(map[string]any)
	assert.Equal(t, "a@b.c", profile["email"])
}

func TestAddRefill(t *testing.T) {
	requestID := uuid.New()
	valid := map[string]any{
		"requestId":     requestID.String(),
		"brand":         "Lifebuoy",
		"volume":        150,
		"totalPrice":    7.5,
		"location":      "KK3",
		"paymentMethod": "e-wallet",
	}

	with := func(key string, value any) map[string]any {
		m := make(map[string]any, len(valid))
		for k, v := range valid {
			m[k] = v
		}
		m[key] = value
		return m
	}

	tests := []struct {
		name       string
		svc        *stubService
		body       any
		wantStatus int
	}{
		{"success", &stubService{refillPoints: 7}, valid, http.StatusOK},
		{"bad payment method", &stubService{}, with("paymentMethod", "cash"), http.StatusBadRequest},
		{"zero volume", &stubService{}, with("volume", 0), http.StatusBadRequest},
		{"negative price", &stubService{}, with("totalPrice", -1), http.StatusBadRequest},
		{"missing brand", &stubService{}, with("brand", ""), http.StatusBadRequest},
		{"unknown brand", &stubService{refillErr: service.ErrUnknownBrand}, with("brand", "Dove"), http.StatusBadRequest},
		{"storage failure", &stubService{refillErr: context.DeadlineExceeded}, valid, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.svc)

			rec := s.do(t, http.MethodPost, "/add-refill", s.userToken(t), tt.body)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.NotEmpty(t, decodeBody(t, rec)["error"])
				return
			}

			body := decodeBody(t, rec)
			assert.Equal(t, float64(7), body["pointsEarned"])
			assert.True(t, tt.svc.refillInput.TotalPrice.Equal(decimal.RequireFromString("7.5")))
			require.NotNil(t, tt.svc.refillInput.RequestID)
			assert.Equal(t, requestID, *tt.svc.refillInput.RequestID)
		})
	}
}

func TestRefillHistory(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestServer(t, &stubService{
		history: []model.RefillRecord{{
			ID:            uuid.New(),
			Brand:         "Lifebuoy",
			Volume:        150,
			TotalPrice:    decimal.RequireFromString("7.50"),
			Location:      "KK3",
			PaymentMethod: model.PaymentEWallet,
			RewardPoints:  7,
			CreatedAt:     created,
		}},
		summary: model.PointsSummary{Earned: 7, Redeemed: 0, Available: 7},
	})

	rec := s.do(t, http.MethodGet, "/refill-history", s.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body refillHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.History, 1)
	assert.Equal(t, int64(7), body.TotalPoints)
	assert.Equal(t, int64(7), body.AvailablePoints)
	assert.Equal(t, json.Number("7.5"), body.History[0].TotalPrice)
	assert.Equal(t, "e-wallet", body.History[0].PaymentMethod)
	assert.Equal(t, created.Format(time.RFC3339), body.History[0].CreatedAt)
}

func TestRefillHistory_KeepsExactPrice(t *testing.T) {
	s := newTestServer(t, &stubService{
		history: []model.RefillRecord{{
			ID:            uuid.New(),
			Brand:         "Lifebuoy",
			Volume:        159.9999,
			TotalPrice:    decimal.RequireFromString("7.999995"),
			Location:      "KK3",
			PaymentMethod: model.PaymentEWallet,
			RewardPoints:  7,
		}},
		summary: model.PointsSummary{Earned: 7, Available: 7},
	})

	rec := s.do(t, http.MethodGet, "/refill-history", s.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_price":7.999995,`)
}

func TestRefillHistory_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, &stubService{})

	rec := s.do(t, http.MethodGet, "/refill-history", s.userToken(t), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"history":[]`)
}

func TestRedeemVoucher(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := newTestServer(t, &stubService{
			voucher:   &model.Voucher{ID: "1", Name: "RM5 Off"},
			remaining: 25,
		})

		rec := s.do(t, http.MethodPost, "/redeem-voucher", s.userToken(t), redeemVoucherRequest{VoucherID: "1", PointsUsed: 50})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, float64(25), body["remainingPoints"])
		assert.Contains(t, body["message"], "RM5 Off")
	})

	t.Run("insufficient points", func(t *testing.T) {
		s := newTestServer(t, &stubService{
			redeemErr: &rewards.InsufficientPointsError{Required: 50, Balance: 40, Shortfall: 10},
		})

		rec := s.do(t, http.MethodPost, "/redeem-voucher", s.userToken(t), redeemVoucherRequest{VoucherID: "1"})

		require.Equal(t, http.StatusConflict, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Insufficient points", body["error"])
		assert.Equal(t, float64(10), body["shortfall"])
	})

	t.Run("unknown voucher", func(t *testing.T) {
		s := newTestServer(t, &stubService{redeemErr: service.ErrUnknownVoucher})

		rec := s.do(t, http.MethodPost, "/redeem-voucher", s.userToken(t), redeemVoucherRequest{VoucherID: "99"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing voucher id", func(t *testing.T) {
		s := newTestServer(t, &stubService{})

		rec := s.do(t, http.MethodPost, "/redeem-voucher", s.userToken(t), redeemVoucherRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubService{})

	req := httptest.NewRequest(http.MethodOptions, testPrefix+"/add-refill", nil)
	req.Header.Set("Origin", "http://kiosk.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &stubService{})

	rec := s.do(t, http.MethodGet, "/nope", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody(t, rec)["error"])
}
