package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/stuhub/experience-system/internal/model"
	"github.com/stuhub/experience-system/internal/record"
)

// Состояния клиента. Явный автомат вместо набора булевых флагов:
// одновременное «сохраняем и отправляем» непредставимо.
const (
	stateIdle       = "idle"
	stateLoading    = "loading"
	stateSaving     = "saving"
	stateSubmitting = "submitting"
)

const (
	evLoad   = "load"
	evSave   = "save"
	evSubmit = "submit"
	evFinish = "finish"
)

// ErrNoRecord возвращается при попытке изменить анкету до завершения загрузки.
// Это ошибка вызывающего кода, а не сети: сохранять нечего, пока нет id.
var ErrNoRecord = errors.New("record id is not known yet")

// ErrBusy возвращается, когда операция отклонена из-за другой операции в полёте.
var ErrBusy = errors.New("another operation is in flight")

// State — снимок состояния клиента для отображающего слоя.
type State struct {
	Data    *model.ExperienceRecord
	Loading bool
	Err     error
}

// Client — публичный интерфейс движка синхронизации для страниц мастера.
// Каждая страница работает с одним экземпляром; конкурентные загрузки
// сливаются через SyncContext, изменяющие операции сериализуются автоматом.
type Client struct {
	store  record.Store
	sc     *SyncContext
	logger *zap.Logger

	machine *fsm.FSM

	mu      sync.Mutex
	userID  int64
	data    *model.ExperienceRecord
	lastErr error
}

// NewClient создаёт клиент синхронизации поверх указанного хранилища.
// Хранилище может быть удалённым или локальным, клиенту это безразлично.
func NewClient(store record.Store, sc *SyncContext, userID int64, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		store:  store,
		sc:     sc,
		logger: logger,
		userID: userID,
		machine: fsm.NewFSM(
			stateIdle,
			fsm.Events{
				{Name: evLoad, Src: []string{stateIdle}, Dst: stateLoading},
				{Name: evSave, Src: []string{stateIdle}, Dst: stateSaving},
				{Name: evSubmit, Src: []string{stateIdle}, Dst: stateSubmitting},
				{Name: evFinish, Src: []string{stateLoading, stateSaving, stateSubmitting}, Dst: stateIdle},
			},
			fsm.Callbacks{},
		),
	}
}

// SetUser переключает активного пользователя: прежний кэш инвалидируется,
// локальная копия сбрасывается, хранилище заменяется (анонимный режим и
// аутентифицированный используют разные реализации). После переключения
// хост обязан заново вызвать Load.
func (c *Client) SetUser(userID int64, store record.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sc != nil {
		c.sc.Invalidate(c.userID)
	}

	c.userID = userID
	if store != nil {
		c.store = store
	}
	c.data = nil
	c.lastErr = nil
}

// Load возвращает текущую анкету, создавая её при первом обращении.
// Конкурентные вызовы сливаются в один запрос к хранилищу.
func (c *Client) Load(ctx context.Context) (*model.ExperienceRecord, error) {
	c.mu.Lock()
	store := c.store
	userID := c.userID
	c.mu.Unlock()

	if store == nil {
		// Аноним без локального хранилища: загружать нечего
		return nil, nil
	}

	// Переход в loading выполняет только первый из конкурентных вызовов;
	// остальные присоединяются к его запросу через SyncContext.
	startedLoad := c.machine.Event(ctx, evLoad) == nil
	if startedLoad {
		defer func() { _ = c.machine.Event(ctx, evFinish) }()
	}

	rec, err := c.sc.Load(ctx, userID, func(fctx context.Context) (*model.ExperienceRecord, error) {
		return store.FetchOrCreate(fctx, userID)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		return nil, err
	}

	c.data = rec
	c.lastErr = nil
	return rec, nil
}

// SaveProgress применяет патч разделов к анкете. Возвращает false и сохраняет
// классифицированную ошибку, если анкета ещё не загружена, уже отправлена,
// занята другой операцией или хранилище ответило отказом. Локальная копия
// меняется только после успешного ответа хранилища.
func (c *Client) SaveProgress(ctx context.Context, patch model.Patch) bool {
	c.mu.Lock()
	if c.data == nil || c.data.ID == "" {
		c.lastErr = ErrNoRecord
		c.mu.Unlock()
		c.logger.Error("save requested before load completed", zap.Error(ErrNoRecord))
		return false
	}
	if c.data.Status == model.StatusSubmitted {
		c.lastErr = record.NewError(record.KindConflict, record.ErrSubmitted)
		c.mu.Unlock()
		return false
	}
	id := c.data.ID
	userID := c.userID
	store := c.store
	c.mu.Unlock()

	if err := c.machine.Event(ctx, evSave); err != nil {
		c.setErr(fmt.Errorf("%w: %s", ErrBusy, c.machine.Current()))
		return false
	}
	defer func() { _ = c.machine.Event(ctx, evFinish) }()

	rec, err := store.Update(ctx, id, patch)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.logger.Warn("save progress failed",
			zap.String("kind", string(record.KindOf(err))), zap.Error(err))
		return false
	}

	c.data = rec
	c.lastErr = nil
	c.sc.Put(userID, rec)
	return true
}

// Submit выполняет одностороннюю отправку: собирает полный патч из всех
// разделов локальной копии, накладывает переданный сверху и передаёт хранилищу
// с маркером отправки. Повторная отправка и отправка во время другой операции
// отклоняются автоматом.
func (c *Client) Submit(ctx context.Context, patch model.Patch) bool {
	c.mu.Lock()
	if c.data == nil || c.data.ID == "" {
		c.lastErr = ErrNoRecord
		c.mu.Unlock()
		c.logger.Error("submit requested before load completed", zap.Error(ErrNoRecord))
		return false
	}
	if c.data.Status == model.StatusSubmitted {
		c.lastErr = record.NewError(record.KindConflict, record.ErrSubmitted)
		c.mu.Unlock()
		return false
	}

	// Полный патч собирается на копии, чтобы при отказе локальное
	// состояние осталось нетронутым.
	assembled := *c.data
	assembled.CompletedSteps = append([]string(nil), c.data.CompletedSteps...)
	assembled.Apply(patch)
	payload := assembled.FullPatch()
	payload.CurrentStep = patch.CurrentStep

	id := c.data.ID
	userID := c.userID
	store := c.store
	c.mu.Unlock()

	if err := c.machine.Event(ctx, evSubmit); err != nil {
		c.setErr(fmt.Errorf("%w: %s", ErrBusy, c.machine.Current()))
		return false
	}
	defer func() { _ = c.machine.Event(ctx, evFinish) }()

	rec, err := store.Submit(ctx, id, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.logger.Error("submit failed",
			zap.String("kind", string(record.KindOf(err))), zap.Error(err))
		return false
	}

	c.data = rec
	c.lastErr = nil
	c.sc.Put(userID, rec)
	return true
}

// Remove удаляет черновик и сбрасывает локальное состояние к пустой анкете.
// Отправленную анкету удалить нельзя.
func (c *Client) Remove(ctx context.Context) bool {
	c.mu.Lock()
	if c.data != nil && c.data.Status == model.StatusSubmitted {
		c.lastErr = record.NewError(record.KindConflict, record.ErrSubmitted)
		c.mu.Unlock()
		return false
	}
	userID := c.userID
	store := c.store
	c.mu.Unlock()

	if store == nil {
		return false
	}

	if err := c.machine.Event(ctx, evSave); err != nil {
		c.setErr(fmt.Errorf("%w: %s", ErrBusy, c.machine.Current()))
		return false
	}
	defer func() { _ = c.machine.Event(ctx, evFinish) }()

	err := store.Delete(ctx, userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.logger.Error("remove failed",
			zap.String("kind", string(record.KindOf(err))), zap.Error(err))
		return false
	}

	c.sc.Invalidate(userID)
	c.data = model.NewDraft(userID)
	c.lastErr = nil
	return true
}

// Snapshot возвращает снимок состояния клиента для отображающего слоя.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Data:    c.data,
		Loading: c.machine.Current() == stateLoading,
		Err:     c.lastErr,
	}
}

// Err возвращает последнюю классифицированную ошибку.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Busy сообщает, выполняется ли сейчас какая-либо операция.
func (c *Client) Busy() bool {
	return c.machine.Current() != stateIdle
}

// CanAutoSave сообщает, допустимо ли сейчас автосохранение: клиент простаивает,
// анкета загружена и ещё не отправлена. Планировщик автосохранения обязан
// сверяться с этим перед каждым срабатыванием.
func (c *Client) CanAutoSave() bool {
	if c.machine.Current() != stateIdle {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data != nil && c.data.ID != "" && c.data.Status != model.StatusSubmitted
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
