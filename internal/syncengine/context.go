// Package syncengine реализует движок синхронизации анкеты: кэширование и
// слияние конкурентных чтений одной записи, согласование записей из независимых
// страниц мастера и одностороннюю отправку.
package syncengine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stuhub/experience-system/internal/model"
)

// DefaultCacheTTL — время жизни кэшированной анкеты. Повторные чтения внутри
// этого окна не ходят в хранилище.
const DefaultCacheTTL = 10 * time.Second

type cacheEntry struct {
	rec       *model.ExperienceRecord
	fetchedAt time.Time
}

// SyncContext объединяет кэш анкет и слияние конкурентных запросов.
// Создаётся один раз на процесс и передаётся всем клиентам явно, а не живёт
// в глобальных переменных: тесты строят свой экземпляр на каждый случай.
type SyncContext struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	cache  map[int64]cacheEntry
	flight singleflight.Group
}

// NewSyncContext создаёт контекст синхронизации с указанным TTL кэша.
// Неположительный TTL заменяется умолчанием.
func NewSyncContext(ttl time.Duration) *SyncContext {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SyncContext{
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[int64]cacheEntry),
	}
}

// Load возвращает анкету пользователя из кэша либо через fetch. Сколько бы
// вызовов ни пришло одновременно, fetch выполняется один раз, и все получают
// один и тот же результат. Неудачный fetch в кэш не попадает: следующий вызов
// повторит запрос, а не получит протухшую ошибку.
func (c *SyncContext) Load(ctx context.Context, userID int64, fetch func(context.Context) (*model.ExperienceRecord, error)) (*model.ExperienceRecord, error) {
	if rec, ok := c.cached(userID); ok {
		return rec, nil
	}

	v, err, _ := c.flight.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		// Пока ждали своей очереди, запись могла попасть в кэш
		if rec, ok := c.cached(userID); ok {
			return rec, nil
		}

		rec, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.Put(userID, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*model.ExperienceRecord), nil
}

func (c *SyncContext) cached(userID int64) (*model.ExperienceRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[userID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		delete(c.cache, userID)
		return nil, false
	}
	return entry.rec, true
}

// Put кладёт анкету в кэш со свежей отметкой времени. Вызывается и после
// успешной записи, чтобы кэш отражал последний ответ хранилища.
func (c *SyncContext) Put(userID int64, rec *model.ExperienceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[userID] = cacheEntry{rec: rec, fetchedAt: c.now()}
}

// Invalidate убирает анкету пользователя из кэша. Вызывается при смене
// пользователя и после удаления черновика.
func (c *SyncContext) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, userID)
}
