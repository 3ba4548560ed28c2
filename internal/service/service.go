// Package service реализует бизнес-логику сервиса анкет.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stuhub/experience-system/internal/model"
	"github.com/stuhub/experience-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetByUser(ctx context.Context, userID int64) (*model.ExperienceRecord, error)
	Create(ctx context.Context, userID int64) (*model.ExperienceRecord, error)
	Update(ctx context.Context, id string, patch model.Patch, submit bool) (*model.ExperienceRecord, error)
	DeleteByUser(ctx context.Context, userID int64) error
	DeleteAbandonedDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	draftCleanupInterval = 1 * time.Hour
	draftAbandonAge      = 90 * 24 * time.Hour
)

// Service содержит бизнес-логику сервиса анкет.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetRecord возвращает анкету пользователя или repository.ErrRecordNotFound.
func (s *Service) GetRecord(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	return s.repo.GetByUser(ctx, userID)
}

// CreateRecord создаёт пустую анкету для пользователя. У пользователя может
// существовать только одна анкета.
func (s *Service) CreateRecord(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	return s.repo.Create(ctx, userID)
}

// SaveProgress применяет патч разделов к анкете пользователя. Анкета должна
// принадлежать пользователю; отправленная анкета неизменяема.
func (s *Service) SaveProgress(ctx context.Context, userID int64, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	if err := s.checkOwnership(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, patch, false)
}

// Submit выполняет одностороннюю отправку анкеты: применяет финальный патч
// и переводит статус в SUBMITTED. Повторная отправка отклоняется.
func (s *Service) Submit(ctx context.Context, userID int64, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	if err := s.checkOwnership(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, patch, true)
}

// DeleteRecord удаляет черновик анкеты пользователя.
func (s *Service) DeleteRecord(ctx context.Context, userID int64) error {
	return s.repo.DeleteByUser(ctx, userID)
}

func (s *Service) checkOwnership(ctx context.Context, userID int64, id string) error {
	rec, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if rec.ID != id {
		// Чужой идентификатор неотличим от несуществующего
		return repository.ErrRecordNotFound
	}
	return nil
}

// StartDraftCleanup запускает фоновый процесс удаления заброшенных черновиков.
func (s *Service) StartDraftCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(draftCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupDrafts(ctx)
			}
		}
	}()
}

func (s *Service) cleanupDrafts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-draftAbandonAge)

	n, err := s.repo.DeleteAbandonedDrafts(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("draft cleanup error", zap.Error(err))
		}
		return
	}

	if n > 0 {
		s.logger.Info("abandoned drafts removed", zap.Int64("count", n))
	}
}
