// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
	ErrUserExists = errors.New("user already registered")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, email, phone, passwordHash string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, phone, password_hash) VALUES ($1, $2, $3, $4)`,
		id, email, phone, passwordHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, ErrUserExists
		}
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByIdentifier возвращает пользователя по email или номеру телефона.
func (r *PostgresRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, phone, password_hash, created_at
		 FROM users
		 WHERE email = $1 OR (phone <> '' AND phone = $1)
		 ORDER BY email = $1 DESC
		 LIMIT 1`,
		identifier,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetProfile возвращает профиль пользователя.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var p model.Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, phone, created_at FROM users WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &p.Email, &p.Phone, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// AddRefill сохраняет запись о наливе. Повторная запись с тем же requestID не создаёт дубликат:
// возвращаются баллы исходной записи и признак created = false.
func (r *PostgresRepository) AddRefill(ctx context.Context, rec model.RefillRecord, requestID *uuid.UUID) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO refill_history
		   (id, user_id, email, request_id, brand, volume, location, total_price, payment_method, reward_points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
		 ON CONFLICT (user_id, request_id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Email, requestID, rec.Brand, rec.Volume, string(rec.Location),
		rec.TotalPrice.String(), string(rec.PaymentMethod), rec.RewardPoints,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert refill: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("commit tx: %w", err)
		}
		return rec.RewardPoints, true, nil
	}

	var points int64
	err = tx.QueryRow(ctx,
		`SELECT reward_points FROM refill_history WHERE user_id = $1 AND request_id = $2`,
		rec.UserID, requestID,
	).Scan(&points)
	if err != nil {
		return 0, false, fmt.Errorf("select existing refill: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit tx: %w", err)
	}

	return points, false, nil
}

// GetRefillHistory возвращает историю наливов пользователя, новые записи первыми.
func (r *PostgresRepository) GetRefillHistory(ctx context.Context, userID uuid.UUID) ([]model.RefillRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, email, brand, volume, location, total_price::text, payment_method, reward_points, created_at
		 FROM refill_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select refills: %w", err)
	}
	defer rows.Close()

	var res []model.RefillRecord
	for rows.Next() {
		var (
			rec           model.RefillRecord
			location      string
			totalPrice    string
			paymentMethod string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.Brand, &rec.Volume, &location,
			&totalPrice, &paymentMethod, &rec.RewardPoints, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refill: %w", err)
		}

		rec.TotalPrice, err = decimal.NewFromString(totalPrice)
		if err != nil {
			return nil, fmt.Errorf("parse total price %q: %w", totalPrice, err)
		}
		rec.Location = model.Location(location)
		rec.PaymentMethod = model.PaymentMethod(paymentMethod)

		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPointsSummary возвращает начисленные и потраченные баллы пользователя.
func (r *PostgresRepository) GetPointsSummary(ctx context.Context, userID uuid.UUID) (model.PointsSummary, error) {
	return pointsSummary(ctx, r.pool, userID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pointsSummary(ctx context.Context, q querier, userID uuid.UUID) (model.PointsSummary, error) {
	var s model.PointsSummary

	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(reward_points), 0) FROM refill_history WHERE user_id = $1`,
		userID,
	).Scan(&s.Earned)
	if err != nil {
		return s, fmt.Errorf("sum reward points: %w", err)
	}

	err = q.QueryRow(ctx,
		`SELECT COALESCE(SUM(points_used), 0) FROM voucher_redemptions WHERE user_id = $1`,
		userID,
	).Scan(&s.Redeemed)
	if err != nil {
		return s, fmt.Errorf("sum redeemed points: %w", err)
	}

	s.Available = s.Earned - s.Redeemed
	if s.Available < 0 {
		s.Available = 0
	}

	return s, nil
}

// CreateRedemption списывает баллы за ваучер и возвращает остаток.
// Строка пользователя блокируется, чтобы параллельные обмены не увели баланс в минус.
func (r *PostgresRepository) CreateRedemption(ctx context.Context, userID uuid.UUID, email string, voucher model.Voucher) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("lock user for update: %w", err)
	}

	summary, err := pointsSummary(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	remaining, err := rewards.Redeem(summary.Available, voucher)
	if err != nil {
		return summary.Available, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO voucher_redemptions (id, user_id, email, voucher_id, points_used) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), userID, email, voucher.ID, voucher.PointsRequired,
	)
	if err != nil {
		return 0, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return remaining, nil
}
