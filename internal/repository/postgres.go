// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/stuhub/experience-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRecordNotFound возвращается, если анкета пользователя не найдена.
var (
	ErrRecordNotFound = errors.New("experience record not found")
	// ErrRecordExists возвращается при попытке создать вторую анкету для пользователя.
	ErrRecordExists = errors.New("experience record already exists")
	// ErrRecordSubmitted возвращается при попытке изменить или удалить отправленную анкету.
	ErrRecordSubmitted = errors.New("experience record already submitted")
)

// PostgresRepository предоставляет доступ к хранилищу анкет в PostgreSQL.
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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Конкурентные сохранения разделов одной анкеты могут ловить
		// сериализацию или deadlock на блокировке строки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const recordColumns = `id, user_id, status, current_step, completed_steps,
	 basic_info, courses, accommodation, living_expenses, experience,
	 last_saved_at, submitted_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ExperienceRecord, error) {
	var rec model.ExperienceRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Status, &rec.CurrentStep, &rec.CompletedSteps,
		&rec.BasicInfo, &rec.Courses, &rec.Accommodation, &rec.LivingExpenses, &rec.Experience,
		&rec.LastSavedAt, &rec.SubmittedAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	if rec.CompletedSteps == nil {
		rec.CompletedSteps = []string{}
	}
	return &rec, nil
}

// GetByUser возвращает анкету пользователя. У пользователя не может быть больше одной анкеты.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM experiences WHERE user_id = $1`,
		userID,
	)
	return scanRecord(row)
}

// Create создаёт пустую анкету в статусе DRAFT для указанного пользователя.
func (r *PostgresRepository) Create(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO experiences (id, user_id) VALUES ($1, $2)
		 RETURNING `+recordColumns,
		uuid.NewString(), userID,
	)

	rec, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: user %d", ErrRecordExists, userID)
		}
		return nil, fmt.Errorf("create record: %w", err)
	}
	return rec, nil
}

// Update применяет патч к анкете. Обновляются только разделы, присутствующие в патче,
// completed_steps объединяются как неубывающее множество. Строка анкеты блокируется
// на время слияния, чтобы конкурентные сохранения разных разделов не затирали друг друга.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch model.Patch, submit bool) (*model.ExperienceRecord, error) {
	var rec *model.ExperienceRecord

	err := r.withRetry(ctx, func() error {
		var txErr error
		rec, txErr = r.updateTx(ctx, id, patch, submit)
		return txErr
	})

	return rec, err
}

func (r *PostgresRepository) updateTx(ctx context.Context, id string, patch model.Patch, submit bool) (*model.ExperienceRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM experiences WHERE id = $1 FOR UPDATE`,
		id,
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.StatusSubmitted {
		return nil, ErrRecordSubmitted
	}

	rec.Apply(patch)
	rec.Status = model.ProgressStatus(rec, submit)

	now := time.Now().UTC()
	rec.LastSavedAt = &now
	if submit {
		rec.SubmittedAt = &now
	}

	_, err = tx.Exec(ctx,
		`UPDATE experiences
		 SET status = $2, current_step = $3, completed_steps = $4,
		     basic_info = $5, courses = $6, accommodation = $7,
		     living_expenses = $8, experience = $9,
		     last_saved_at = $10, submitted_at = $11
		 WHERE id = $1`,
		rec.ID, string(rec.Status), rec.CurrentStep, rec.CompletedSteps,
		rec.BasicInfo, rec.Courses, rec.Accommodation,
		rec.LivingExpenses, rec.Experience,
		rec.LastSavedAt, rec.SubmittedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return rec, nil
}

// DeleteByUser удаляет черновик анкеты пользователя. Отправленную анкету удалить нельзя.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM experiences WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("select record status: %w", err)
	}

	if model.Status(status) == model.StatusSubmitted {
		return ErrRecordSubmitted
	}

	if _, err := tx.Exec(ctx, `DELETE FROM experiences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DeleteAbandonedDrafts удаляет черновики, не менявшиеся с указанного момента.
// Возвращает количество удалённых анкет.
func (r *PostgresRepository) DeleteAbandonedDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM experiences
		 WHERE status = $1
		   AND created_at < $2
		   AND (last_saved_at IS NULL OR last_saved_at < $2)`,
		string(model.StatusDraft), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete abandoned drafts: %w", err)
	}
	return tag.RowsAffected(), nil
}
