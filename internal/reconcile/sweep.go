// Package reconcile сверяет число выполненных заказов приглашённых водителей с
// данными парка и один раз уведомляет о достижении порога.
//
// Защита от повторного уведомления держится на блокировке по приглашённому и
// перечитывании связи перед отправкой внутри одного процесса. Несколько
// процессов сверки одновременно не координируются: запускайте один.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/notify"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/monitoring"
)

// ErrCycleInProgress: цикл уже выполняется
var ErrCycleInProgress = errors.New("reconcile: cycle already in progress")

// Fleet: запросы к парку, нужные сверке
type Fleet interface {
	OrderCount(ctx context.Context, driverID string) fleet.OrderCountResult
	ClassifyPosition(ctx context.Context, driverID string) fleet.PositionResult
}

type Config struct {
	Interval     time.Duration
	Jitter       time.Duration // случайная добавка к интервалу
	EntrySpacing time.Duration // пауза между записями очереди
	Thresholds   models.Thresholds
}

func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		Jitter:       5 * time.Minute,
		EntrySpacing: 2 * time.Second,
		Thresholds:   models.DefaultThresholds(),
	}
}

// EntryResult: чем закончилась обработка одной записи
type EntryResult string

const (
	EntryUpdated  EntryResult = "updated"  // счётчик записан, порог не достигнут или уже уведомлено
	EntryUnknown  EntryResult = "unknown"  // парк не ответил, счётчик не менялся
	EntryNotified EntryResult = "notified" // уведомление отправлено и отмечено
	EntrySkipped  EntryResult = "skipped"  // нет связи или позиции, повтор в следующем цикле
	EntryFailed   EntryResult = "error"
)

type CycleResult struct {
	ID          string
	Started     time.Time
	Finished    time.Time
	Fallback    bool // очередь взята из резервного списка
	Entries     int
	Processed   int
	Updated     int
	Unknown     int
	Notified    int
	Skipped     int
	Failed      int
	Interrupted bool
}

func (r *CycleResult) add(res EntryResult) {
	r.Processed++
	switch res {
	case EntryUpdated:
		r.Updated++
	case EntryUnknown:
		r.Unknown++
	case EntryNotified:
		r.Notified++
	case EntrySkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

type Sweeper struct {
	store    database.Store
	fleet    Fleet
	notifier notify.Dispatcher
	cfg      Config

	locks   keyedMutex
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	done    chan struct{}
	exited  chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSweeper(store database.Store, fleet Fleet, notifier notify.Dispatcher, cfg Config) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = def.Thresholds
	}
	return &Sweeper{
		store:    store,
		fleet:    fleet,
		notifier: notifier,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// RunCycle: один проход по очереди сверки. Записи обрабатываются по одной;
// отмена ctx проверяется между записями, текущая запись доводится до конца.
func (s *Sweeper) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{ID: uuid.NewString(), Started: time.Now()}
	if !s.cycleMu.TryLock() {
		monitoring.SweepCyclesTotal.WithLabelValues("busy").Inc()
		return result, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	log := zap.L().With(zap.String("cycle_id", result.ID))
	log.Info("🔄 Начинаю цикл сверки заказов")

	queue, fallback, err := s.buildQueue(ctx)
	if err != nil {
		monitoring.SweepCyclesTotal.WithLabelValues("error").Inc()
		return result, err
	}
	result.Entries = len(queue)
	result.Fallback = fallback

	if len(queue) == 0 {
		log.Info("Нет рефералов для проверки")
	}

	result.Interrupted = s.processQueue(ctx, log, queue, &result)

	result.Finished = time.Now()
	monitoring.SweepCycleDuration.Observe(result.Finished.Sub(result.Started).Seconds())
	label := "ok"
	if result.Interrupted {
		label = "interrupted"
	}
	monitoring.SweepCyclesTotal.WithLabelValues(label).Inc()

	log.Info("✅ Цикл сверки завершён",
		zap.Int("entries", result.Entries),
		zap.Int("updated", result.Updated),
		zap.Int("unknown", result.Unknown),
		zap.Int("notified", result.Notified),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("fallback", result.Fallback),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("duration", result.Finished.Sub(result.Started)))
	return result, nil
}

// RefreshReferrer обновляет счётчики приглашённых одного пользователя
// (экран профиля в боте). Возвращает число записей с новым счётчиком.
func (s *Sweeper) RefreshReferrer(ctx context.Context, referrerID int64) (int, error) {
	queue, err := s.store.ListReferrerDueForCheck(ctx, referrerID)
	if err != nil {
		return 0, err
	}
	enrolled, err := s.store.ListEnrolledUsers(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range enrolled {
		if !d.HasEdge && d.ReferrerID != nil && *d.ReferrerID == referrerID {
			queue = append(queue, d)
		}
	}

	log := zap.L().With(zap.Int64("referrer_id", referrerID))
	var result CycleResult
	s.processQueue(ctx, log, queue, &result)
	log.Info("Счётчики приглашённых обновлены",
		zap.Int("entries", len(queue)),
		zap.Int("updated", result.Updated+result.Notified))
	return result.Updated + result.Notified, nil
}

// buildQueue: основной список; если он пуст, весь резервный; иначе основной
// плюс зачисленные с пригласившим, но без связи
func (s *Sweeper) buildQueue(ctx context.Context) ([]models.DueReferral, bool, error) {
	primary, err := s.store.ListReferralsDueForCheck(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "reconcile: list due referrals")
	}

	enrolled, err := s.store.ListEnrolledUsers(ctx)
	if err != nil {
		if len(primary) == 0 {
			return nil, false, eris.Wrap(err, "reconcile: list enrolled users")
		}
		zap.L().Warn("Резервный список недоступен, работаем по основному", zap.Error(err))
		return primary, false, nil
	}

	if len(primary) == 0 {
		if len(enrolled) > 0 {
			zap.L().Info("Основной список пуст, беру всех зачисленных", zap.Int("count", len(enrolled)))
		}
		return enrolled, true, nil
	}

	queue := primary
	for _, d := range enrolled {
		if !d.HasEdge && d.ReferrerID != nil {
			queue = append(queue, d)
		}
	}
	return queue, false, nil
}

// processQueue возвращает true, если обход прерван отменой ctx
func (s *Sweeper) processQueue(ctx context.Context, log *zap.Logger, queue []models.DueReferral, result *CycleResult) bool {
	// текущая запись доводится до конца даже после отмены
	entryCtx := context.WithoutCancel(ctx)

	for i, d := range queue {
		if i > 0 && s.cfg.EntrySpacing > 0 {
			if err := s.sleep(ctx, s.cfg.EntrySpacing); err != nil {
				return true
			}
		}
		if ctx.Err() != nil {
			return true
		}

		res, err := s.processEntry(entryCtx, d)
		monitoring.SweepEntriesTotal.WithLabelValues(string(res)).Inc()
		result.add(res)
		if err != nil {
			log.Error("Ошибка обработки реферала",
				zap.Int64("referred_id", d.ReferredID),
				zap.String("driver_id", d.DriverID),
				zap.Error(err))
		}
	}
	return false
}

// processEntry обрабатывает одну запись; паника не прерывает цикл
func (s *Sweeper) processEntry(ctx context.Context, d models.DueReferral) (res EntryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = EntryFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	unlock := s.locks.Lock(d.ReferredID)
	defer unlock()

	log := zap.L().With(zap.Int64("referred_id", d.ReferredID), zap.String("driver_id", d.DriverID))

	position := d.Position
	if !position.Known() {
		if classified := s.fleet.ClassifyPosition(ctx, d.DriverID); classified.Known() {
			position = classified.Position
			if err := s.store.SetPosition(ctx, d.ReferredID, position); err != nil {
				return EntryFailed, err
			}
		}
	}

	orders := s.fleet.OrderCount(ctx, d.DriverID)
	if !orders.Known {
		log.Warn("Не удалось получить количество заказов", zap.Error(orders.Err))
		return EntryUnknown, nil
	}

	updated, err := s.store.SetOrderCount(ctx, d.ReferredID, orders.Count)
	if err != nil {
		return EntryFailed, err
	}
	if !updated {
		log.Debug("Нет реферальной связи, пропускаю", zap.Int("order_count", orders.Count))
		return EntrySkipped, nil
	}
	log.Info("Заказы водителя", zap.Int("order_count", orders.Count), zap.Int("previous", d.OrderCount))

	threshold, ok := s.cfg.Thresholds.For(position)
	if !ok {
		log.Warn("Позиция неизвестна, порог не проверяется")
		return EntrySkipped, nil
	}
	if orders.Count < threshold || d.ReferrerID == nil {
		return EntryUpdated, nil
	}

	// состояние могло измениться с момента построения очереди
	edge, err := s.store.GetReferral(ctx, *d.ReferrerID, d.ReferredID)
	if err != nil {
		return EntryFailed, err
	}
	if edge.Notified {
		return EntryUpdated, nil
	}

	ev := notify.GoalReached{
		ReferrerID: *d.ReferrerID,
		ReferredID: d.ReferredID,
		Position:   position,
		OrderCount: orders.Count,
		Threshold:  threshold,
	}
	if err := s.notifier.GoalReached(ctx, ev); err != nil {
		return EntryFailed, eris.Wrap(err, "reconcile: dispatch goal reached")
	}
	if err := s.store.MarkNotified(ctx, ev.ReferrerID, ev.ReferredID); err != nil {
		log.Error("Уведомление отправлено, но флаг не записан: возможен повтор", zap.Error(err))
		return EntryFailed, err
	}

	log.Info("🎯 Порог достигнут, уведомление отправлено",
		zap.Int64("referrer_id", ev.ReferrerID),
		zap.Int("threshold", threshold))
	return EntryNotified, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
