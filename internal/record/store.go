// Package record определяет хранилище анкеты и две его реализации:
// удалённую (HTTP-сервис анкет) для аутентифицированных пользователей и
// локальную (badger) для анонимного режима. Движок синхронизации работает
// с обеими через единый контракт и не знает, какая из них активна.
package record

import (
	"context"

	"github.com/stuhub/experience-system/internal/model"
)

// Store — контракт хранилища анкеты, используемый движком синхронизации.
type Store interface {
	// FetchOrCreate возвращает анкету пользователя, создавая её при отсутствии.
	FetchOrCreate(ctx context.Context, userID int64) (*model.ExperienceRecord, error)
	// Update применяет патч разделов к анкете.
	Update(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error)
	// Submit выполняет одностороннюю отправку анкеты с финальным патчем.
	Submit(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error)
	// Delete удаляет черновик анкеты пользователя.
	Delete(ctx context.Context, userID int64) error
}
