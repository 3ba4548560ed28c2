package autosave

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RapidEditsFireOnce(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: 50 * time.Millisecond,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.Touch()
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&saves); got != 1 {
		t.Errorf("saves = %d, want 1 for rapid edit burst", got)
	}
}

func TestScheduler_StopPreventsFire(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: 30 * time.Millisecond,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	s.Touch()
	s.Stop()

	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&saves); got != 0 {
		t.Errorf("saves = %d, want 0 after Stop", got)
	}
}

func TestScheduler_TouchAfterStopIgnored(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: 20 * time.Millisecond,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})

	s.Stop()
	s.Touch()

	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&saves); got != 0 {
		t.Errorf("saves = %d, want 0", got)
	}
}

func TestScheduler_SkipsWhenNotAllowed(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: 20 * time.Millisecond,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
		Allow: func() bool { return false },
	})
	defer s.Stop()

	s.Touch()
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&saves); got != 0 {
		t.Errorf("saves = %d, want 0 while another operation is in flight", got)
	}
}

func TestScheduler_SkipsUntouchedForm(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: 20 * time.Millisecond,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
		Dirty: func() bool { return false },
	})
	defer s.Stop()

	s.Touch()
	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&saves); got != 0 {
		t.Errorf("saves = %d, want 0 for empty form", got)
	}
}

func TestScheduler_FlushSavesImmediately(t *testing.T) {
	var saves int32

	s := NewScheduler(Config{
		QuietPeriod: time.Hour,
		Save: func() error {
			atomic.AddInt32(&saves, 1)
			return nil
		},
	})
	defer s.Stop()

	s.Touch()

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if got := atomic.LoadInt32(&saves); got != 1 {
		t.Fatalf("saves = %d, want 1 right after Flush", got)
	}

	// Отменённый таймер не срабатывает вторым разом
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&saves); got != 1 {
		t.Errorf("saves = %d, want still 1", got)
	}
}

func TestScheduler_FlushSurfacesError(t *testing.T) {
	wantErr := errors.New("save failed")

	s := NewScheduler(Config{
		QuietPeriod: time.Hour,
		Save:        func() error { return wantErr },
	})
	defer s.Stop()

	if err := s.Flush(); !errors.Is(err, wantErr) {
		t.Fatalf("Flush error = %v, want %v", err, wantErr)
	}
}

func TestScheduler_FlushAfterStop(t *testing.T) {
	s := NewScheduler(Config{
		QuietPeriod: time.Hour,
		Save:        func() error { return nil },
	})

	s.Stop()

	if err := s.Flush(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Flush error = %v, want ErrStopped", err)
	}
}

func TestScheduler_FlushNotAllowed(t *testing.T) {
	s := NewScheduler(Config{
		QuietPeriod: time.Hour,
		Save:        func() error { return nil },
		Allow:       func() bool { return false },
	})
	defer s.Stop()

	if err := s.Flush(); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Flush error = %v, want ErrNotAllowed", err)
	}
}
