package reconcile

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Start запускает цикл сразу и затем каждые Interval плюс случайную добавку до Jitter
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return eris.New("reconcile: sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	s.mu.Unlock()

	zap.L().Info("Планировщик сверки заказов запущен",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("jitter", s.cfg.Jitter),
		zap.Duration("entry_spacing", s.cfg.EntrySpacing))

	go s.runLoop(ctx, s.done, s.exited)
	return nil
}

// Stop просит цикл остановиться и ждёт: текущая запись доводится до конца
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	exited := s.exited
	s.mu.Unlock()

	<-exited
	zap.L().Info("Планировщик сверки заказов остановлен")
}

// RunNow: внеочередной цикл (админский API, CLI)
func (s *Sweeper) RunNow(ctx context.Context) (CycleResult, error) {
	return s.RunCycle(ctx)
}

func (s *Sweeper) runLoop(ctx context.Context, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	for {
		if _, err := s.RunCycle(loopCtx); err != nil {
			zap.L().Error("Цикл сверки не выполнен", zap.Error(err))
		}

		wait := s.nextDelay()
		zap.L().Info("Следующая сверка", zap.Duration("in", wait))
		if err := s.sleep(loopCtx, wait); err != nil {
			return
		}
	}
}

func (s *Sweeper) nextDelay() time.Duration {
	if s.cfg.Jitter <= 0 {
		return s.cfg.Interval
	}
	return s.cfg.Interval + rand.N(s.cfg.Jitter)
}
