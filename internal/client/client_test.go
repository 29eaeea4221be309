package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
)

const (
	testAnonKey = "anon-key"
	testToken   = "user-token"
)

// fakeAPI реализует упрощённый HTTP API в памяти.
type fakeAPI struct {
	mu        sync.Mutex
	records   []refillRecordPayload
	redeemed  int64
	loggedOut bool
	lastBody  map[string]any
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /signup", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAnonKey {
			writeTestError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req signUpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email == "taken@b.c" {
			writeTestError(w, http.StatusBadRequest, "A user with this email address has already been registered")
			return
		}
		writeTestJSON(w, http.StatusOK, signUpResponse{Success: true, User: userPayload{ID: uuid.New(), Email: req.Email}})
	})

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret1" {
			writeTestError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeTestJSON(w, http.StatusOK, tokenResponse{
			AccessToken: testToken,
			ExpiresAt:   time.Now().Add(time.Hour),
			User:        userPayload{ID: uuid.New(), Email: req.Identifier},
		})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testToken {
				writeTestError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /logout", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loggedOut = true
		f.mu.Unlock()
		writeTestJSON(w, http.StatusOK, map[string]bool{"success": true})
	}))

	mux.HandleFunc("POST /add-refill", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&body))

		price, err := decimal.NewFromString(body["totalPrice"].(json.Number).String())
		require.NoError(t, err)
		volume, err := body["volume"].(json.Number).Float64()
		require.NoError(t, err)

		points := rewards.PointsEarned(price)

		f.mu.Lock()
		f.lastBody = body
		f.records = append([]refillRecordPayload{{
			ID:            uuid.New(),
			Brand:         body["brand"].(string),
			Volume:        volume,
			TotalPrice:    json.Number(price.String()),
			Location:      body["location"].(string),
			PaymentMethod: body["paymentMethod"].(string),
			RewardPoints:  points,
			CreatedAt:     time.Now().UTC(),
		}}, f.records...)
		f.mu.Unlock()

		writeTestJSON(w, http.StatusOK, addRefillResponse{Success: true, PointsEarned: points})
	}))

	mux.HandleFunc("GET /refill-history", authed(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var total int64
		for _, rec := range f.records {
			total += rec.RewardPoints
		}
		writeTestJSON(w, http.StatusOK, historyResponse{
			History:         f.records,
			TotalPoints:     total,
			RedeemedPoints:  f.redeemed,
			AvailablePoints: total - f.redeemed,
		})
	}))

	mux.HandleFunc("GET /profile", authed(func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"profile": model.Profile{Email: "a@b.c", Phone: "0123"}})
	}))

	mux.HandleFunc("POST /redeem-voucher", authed(func(w http.ResponseWriter, r *http.Request) {
		var req redeemVoucherRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		defer f.mu.Unlock()

		var total int64
		for _, rec := range f.records {
			total += rec.RewardPoints
		}
		available := total - f.redeemed
		if available < req.PointsUsed {
			writeTestJSON(w, http.StatusConflict, map[string]any{"error": "Insufficient points", "shortfall": req.PointsUsed - available})
			return
		}
		f.redeemed += req.PointsUsed
		writeTestJSON(w, http.StatusOK, redeemVoucherResponse{Success: true, RemainingPoints: available - req.PointsUsed})
	}))

	return mux
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeTestError(w http.ResponseWriter, status int, msg string) {
	writeTestJSON(w, status, map[string]string{"error": msg})
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()

	api := &fakeAPI{}
	ts := httptest.NewServer(api.handler(t))
	t.Cleanup(ts.Close)

	return NewClient(ts.URL, testAnonKey), api
}

func TestNewClient_AddsScheme(t *testing.T) {
	c := NewClient("localhost:8080/api/greenfill/", "")
	assert.Equal(t, "http://localhost:8080/api/greenfill", c.baseURL)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("", "")
	_, err := c.RecordRefill(context.Background(), testToken, RefillRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSignUp(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	id, err := c.SignUp(ctx, "a@b.c", "0123", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	_, ok := c.CurrentSession()
	assert.False(t, ok, "sign-up must not open a session")

	_, err = c.SignUp(ctx, "taken@b.c", "0123", "secret1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "A user with this email address has already been registered", apiErr.Message)
}

func TestSignIn_UniformFailure(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.SignIn(context.Background(), "a@b.c", "wrong")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, ok := c.CurrentSession()
	assert.False(t, ok)
}

func TestSessionLifecycle(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	session, err := c.SignIn(ctx, "a@b.c", "secret1")
	require.NoError(t, err)
	assert.Equal(t, testToken, session.AccessToken)
	assert.Equal(t, "a@b.c", session.Email)

	current, ok := c.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, testToken, current.AccessToken)

	require.NoError(t, c.SignOut(ctx))
	assert.True(t, api.loggedOut)

	_, ok = c.CurrentSession()
	assert.False(t, ok)

	require.NoError(t, c.SignOut(ctx), "second sign-out is a no-op")
}

func TestCurrentSession_Expired(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.SignIn(context.Background(), "a@b.c", "secret1")
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	_, ok := c.CurrentSession()
	assert.False(t, ok)
}

func TestRecordRefill_RoundTrip(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	requestID := uuid.New()
	points, err := c.RecordRefill(ctx, testToken, RefillRequest{
		RequestID:     requestID,
		Brand:         "Lifebuoy",
		Volume:        150,
		TotalPrice:    decimal.RequireFromString("7.5"),
		Location:      "KK3",
		PaymentMethod: model.PaymentEWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), points)
	assert.Equal(t, json.Number("7.5"), api.lastBody["totalPrice"])
	assert.Equal(t, requestID.String(), api.lastBody["requestId"])

	_, err = c.RecordRefill(ctx, testToken, RefillRequest{
		Brand:         "Pureen",
		Volume:        215,
		TotalPrice:    decimal.RequireFromString("12.9"),
		Location:      "KK10",
		PaymentMethod: model.PaymentOnlineTransfer,
	})
	require.NoError(t, err)
	_, hasRequestID := api.lastBody["requestId"]
	assert.False(t, hasRequestID)

	history, err := c.ListHistory(ctx, testToken)
	require.NoError(t, err)
	require.Len(t, history.Records, 2)

	newest := history.Records[0]
	assert.Equal(t, "Pureen", newest.Brand)
	assert.Equal(t, 215.0, newest.Volume)
	assert.True(t, newest.TotalPrice.Equal(decimal.RequireFromString("12.9")))
	assert.Equal(t, model.Location("KK10"), newest.Location)
	assert.Equal(t, model.PaymentOnlineTransfer, newest.PaymentMethod)

	oldest := history.Records[1]
	assert.Equal(t, "Lifebuoy", oldest.Brand)
	assert.True(t, oldest.TotalPrice.Equal(decimal.RequireFromString("7.5")))

	assert.Equal(t, rewards.Total(history.Records), history.TotalPoints)
	assert.Equal(t, int64(19), history.TotalPoints)
}

func TestLedger_Unauthorized(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.RecordRefill(ctx, "", RefillRequest{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.ListHistory(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestProfile(t *testing.T) {
	c, _ := newTestClient(t)

	p, err := c.Profile(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "0123", p.Phone)
}

func TestRedeemVoucher(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	voucher := model.Voucher{ID: "1", PointsRequired: 50}

	_, err := c.RecordRefill(ctx, testToken, RefillRequest{
		Brand: "Pureen", Volume: 700, TotalPrice: decimal.RequireFromString("42"), Location: "KK1", PaymentMethod: model.PaymentEWallet,
	})
	require.NoError(t, err)

	_, err = c.RedeemVoucher(ctx, testToken, voucher)
	var insufficient *rewards.InsufficientPointsError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, int64(8), insufficient.Shortfall)
	assert.Equal(t, int64(42), insufficient.Balance)

	_, err = c.RecordRefill(ctx, testToken, RefillRequest{
		Brand: "Pureen", Volume: 1000, TotalPrice: decimal.RequireFromString("60"), Location: "KK1", PaymentMethod: model.PaymentEWallet,
	})
	require.NoError(t, err)

	remaining, err := c.RedeemVoucher(ctx, testToken, voucher)
	require.NoError(t, err)
	assert.Equal(t, int64(52), remaining)
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{Status: 500, Message: "Failed to record refill"}
	assert.True(t, strings.Contains(err.Error(), "Failed to record refill"))
}
