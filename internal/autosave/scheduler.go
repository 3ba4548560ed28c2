// Package autosave реализует отложенное автосохранение страницы мастера.
package autosave

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQuietPeriod — период тишины после последней правки, по истечении
// которого выполняется автосохранение.
const DefaultQuietPeriod = 3 * time.Second

// ErrStopped возвращается из Flush после остановки планировщика.
var ErrStopped = errors.New("scheduler stopped")

// ErrNotAllowed возвращается из Flush, когда сохранение сейчас недопустимо.
var ErrNotAllowed = errors.New("saving is not allowed now")

// Config описывает зависимости планировщика автосохранения.
type Config struct {
	// QuietPeriod — период тишины; неположительное значение заменяется умолчанием.
	QuietPeriod time.Duration
	// Save выполняет собственно сохранение.
	Save func() error
	// Allow сообщает, допустимо ли сохранение: клиент не занят другой
	// операцией и анкета не отправлена.
	Allow func() bool
	// Dirty сообщает, что пользователь ввёл хоть что-то. Пустая форма
	// не сохраняется, чтобы не плодить бессмысленные черновики.
	Dirty func() bool

	Logger *zap.Logger
}

// Scheduler владеет единственным отменяемым таймером страницы. Каждая правка
// сбрасывает таймер; сохранение срабатывает только после периода тишины.
// После Stop таймер гарантированно не срабатывает.
type Scheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	quiet  time.Duration
	save   func() error
	allow  func() bool
	dirty  func() bool
	logger *zap.Logger
}

// NewScheduler создаёт планировщик автосохранения с указанной конфигурацией.
func NewScheduler(cfg Config) *Scheduler {
	quiet := cfg.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allow := cfg.Allow
	if allow == nil {
		allow = func() bool { return true }
	}

	dirty := cfg.Dirty
	if dirty == nil {
		dirty = func() bool { return true }
	}

	return &Scheduler{
		quiet:  quiet,
		save:   cfg.Save,
		allow:  allow,
		dirty:  dirty,
		logger: logger,
	}
}

// Touch отмечает правку: перезапускает таймер тишины.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.dirty() {
		return
	}
	if !s.allow() {
		// Идёт ручное сохранение или отправка: авто-запись пропускается,
		// следующая правка поставит новый таймер.
		return
	}

	// Неудача автосохранения не мешает пользователю: только строка в логе
	if err := s.save(); err != nil {
		s.logger.Warn("autosave failed", zap.Error(err))
	}
}

// Flush отменяет отложенный таймер и выполняет сохранение немедленно.
// Используется при уходе со страницы; ошибка возвращается вызывающему.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if !s.dirty() {
		return nil
	}
	if !s.allow() {
		return ErrNotAllowed
	}

	return s.save()
}

// Stop останавливает планировщик навсегда: отложенный таймер отменяется,
// новые Touch игнорируются. Вызывается при демонтаже страницы и после отправки.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
