package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/stuhub/experience-system/internal/model"
)

const draftKeyPrefix = "draft:"

// localRecordID — идентификатор эфемерной анкеты анонимного режима.
const localRecordID = "local"

// draftEntry — заметка одного шага мастера в локальном хранилище.
type draftEntry struct {
	Type      string        `json:"type"`
	Title     string        `json:"title"`
	Data      model.Section `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

// LocalStore хранит черновики шагов анонимного пользователя в badger по ключу
// draft:<stepType>. Это деградированный режим: единого агрегата и серверных
// инвариантов нет, данные не покидают машину пользователя.
type LocalStore struct {
	db *badger.DB
}

// NewLocalStore открывает локальное хранилище черновиков в указанном каталоге.
func NewLocalStore(dir string) (*LocalStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local draft store: %w", err)
	}

	return &LocalStore{db: db}, nil
}

// Close закрывает локальное хранилище.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// FetchOrCreate собирает эфемерную анкету из сохранённых черновиков шагов.
// Отсутствие черновиков означает пустую анкету, создавать ничего не нужно.
func (s *LocalStore) FetchOrCreate(ctx context.Context, userID int64) (*model.ExperienceRecord, error) {
	rec := model.NewDraft(userID)
	rec.ID = localRecordID

	var lastSaved int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(draftKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry draftEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decode draft: %w", err)
			}

			section, ok := model.SectionForStep(model.StepType(entry.Type))
			if !ok {
				continue
			}
			rec.SetSection(section, entry.Data)

			if entry.Timestamp > lastSaved {
				lastSaved = entry.Timestamp
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindServer, err)
	}

	if lastSaved > 0 {
		t := time.UnixMilli(lastSaved)
		rec.LastSavedAt = &t
	}

	return rec, nil
}

// Update записывает разделы патча как черновики соответствующих шагов.
func (s *LocalStore) Update(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		for name, section := range patch.Sections() {
			step, ok := model.StepForSection(name)
			if !ok {
				continue
			}

			entry := draftEntry{
				Type:      string(step),
				Title:     model.StepTitles[step],
				Data:      section,
				Timestamp: time.Now().UnixMilli(),
			}

			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode draft: %w", err)
			}

			if err := txn.Set([]byte(draftKeyPrefix+string(step)), data); err != nil {
				return fmt.Errorf("set draft: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewError(KindServer, err)
	}

	return s.FetchOrCreate(ctx, 0)
}

// Submit очищает локальные черновики: после успешной финальной отправки
// заметки шагов больше не нужны.
func (s *LocalStore) Submit(ctx context.Context, id string, patch model.Patch) (*model.ExperienceRecord, error) {
	rec, err := s.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if err := s.db.DropPrefix([]byte(draftKeyPrefix)); err != nil {
		return nil, NewError(KindServer, fmt.Errorf("clear drafts: %w", err))
	}

	now := time.Now().UTC()
	rec.Status = model.StatusSubmitted
	rec.SubmittedAt = &now

	return rec, nil
}

// Delete удаляет все локальные черновики.
func (s *LocalStore) Delete(ctx context.Context, userID int64) error {
	if err := s.db.DropPrefix([]byte(draftKeyPrefix)); err != nil {
		return NewError(KindServer, fmt.Errorf("clear drafts: %w", err))
	}
	return nil
}
