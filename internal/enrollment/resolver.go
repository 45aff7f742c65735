// Package enrollment решает по номеру телефона, кто перед ботом: новый кандидат,
// водитель парка или вернувшийся кандидат без подтверждения.
package enrollment

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/notify"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/monitoring"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// Fleet: запросы к парку, которые нужны резолверу
type Fleet interface {
	FindDriverByPhone(ctx context.Context, rawPhone string) fleet.LookupResult
	ClassifyPosition(ctx context.Context, driverID string) fleet.PositionResult
}

type Status string

const (
	StatusNew       Status = "new"       // впервые ввёл телефон, в парке не найден
	StatusEnrolled  Status = "enrolled"  // найден в парке
	StatusReturning Status = "returning" // уже был, в парке всё ещё нет
)

// Candidate: данные пользователя из мессенджера
type Candidate struct {
	UserID     int64
	Username   string
	FullName   string
	FirstName  string
	ReferrerID *int64
}

type Outcome struct {
	Status     Status
	Phone      string
	User       *models.User
	Driver     *fleet.Driver
	Position   models.Position
	ReferrerID *int64      // итоговый пригласивший
	EdgeAdded  bool        // связь создана этим вызовом
	Cause      fleet.Cause // почему не найден: not_found, timeout, error
}

type Resolver struct {
	store    database.Store
	fleet    Fleet
	notifier notify.Dispatcher
}

func NewResolver(store database.Store, fleet Fleet, notifier notify.Dispatcher) *Resolver {
	return &Resolver{store: store, fleet: fleet, notifier: notifier}
}

// Resolve проверяет телефон в парке и записывает результат.
// Пригласивший сохраняется всегда; связь создаётся для любого найденного
// водителя, даже если он был в парке до приглашения.
func (r *Resolver) Resolve(ctx context.Context, c Candidate, rawPhone string) (*Outcome, error) {
	if !phone.Valid(rawPhone) {
		return nil, ErrInvalidPhone
	}
	normalized := phone.Normalize(rawPhone)

	log := zap.L().With(zap.Int64("user_id", c.UserID))

	referrerID := c.ReferrerID
	if referrerID != nil && *referrerID == c.UserID {
		log.Info("Самоприглашение проигнорировано")
		referrerID = nil
	}

	inserted, err := r.store.UpsertUser(ctx, &models.User{
		ID:         c.UserID,
		Username:   c.Username,
		FullName:   c.FullName,
		FirstName:  c.FirstName,
		Phone:      &normalized,
		ReferrerID: referrerID,
	})
	if err != nil {
		return nil, err
	}

	effective := referrerID
	if referrerID != nil {
		if effective, err = r.store.AttachReferrer(ctx, c.UserID, *referrerID); err != nil {
			return nil, err
		}
	} else if !inserted {
		existing, err := r.store.GetUser(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		effective = existing.ReferrerID
	}

	out := &Outcome{Phone: normalized, ReferrerID: effective}

	lookup := r.fleet.FindDriverByPhone(ctx, normalized)
	if !lookup.Found {
		out.Cause = lookup.Cause
		keep, err := r.keepEnrollment(ctx, c.UserID, lookup.Cause, inserted)
		if err != nil {
			return nil, err
		}
		if !keep {
			if err := r.store.SaveEnrollment(ctx, c.UserID, models.Enrollment{Phone: normalized, Enrolled: false}); err != nil {
				return nil, err
			}
		}
		out.Status = StatusReturning
		if inserted {
			out.Status = StatusNew
		}
		log.Info("Кандидат не найден в парке",
			zap.String("status", string(out.Status)),
			zap.String("cause", string(lookup.Cause)))
		return r.finish(ctx, out, c.UserID)
	}

	driver := lookup.Driver
	out.Driver = driver
	out.Status = StatusEnrolled

	classified := r.fleet.ClassifyPosition(ctx, driver.ID)
	out.Position = classified.Position
	if !classified.Known() {
		// retrieve не ответил: берём только явные признаки машины из списка профилей,
		// иначе позиция остаётся неизвестной до сверки
		if pos, source := fleet.ClassifyCar(driver.Car); source != fleet.SourceDefault {
			out.Position = pos
		}
	}

	if err := r.store.SaveEnrollment(ctx, c.UserID, models.Enrollment{
		Phone:      normalized,
		Enrolled:   true,
		DriverID:   driver.ID,
		DriverName: driver.DisplayName(),
		Position:   out.Position,
	}); err != nil {
		return nil, err
	}
	if err := r.store.SetPosition(ctx, c.UserID, out.Position); err != nil {
		return nil, err
	}

	if effective != nil {
		added, err := r.store.UpsertReferralEdge(ctx, *effective, c.UserID, out.Position)
		if err != nil {
			return nil, err
		}
		out.EdgeAdded = added
	}

	log.Info("✅ Водитель подтверждён",
		zap.String("driver_id", driver.ID),
		zap.String("position", string(out.Position)),
		zap.Bool("edge_added", out.EdgeAdded))
	return r.finish(ctx, out, c.UserID)
}

// keepEnrollment: сбой запроса к парку не снимает подтверждённого водителя,
// снять его может только ответ «не найден»
func (r *Resolver) keepEnrollment(ctx context.Context, userID int64, cause fleet.Cause, inserted bool) (bool, error) {
	if inserted || cause == fleet.CauseNotFound {
		return false, nil
	}
	u, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.Enrolled {
		zap.L().Warn("⚠️ Парк не ответил, подтверждение водителя сохранено",
			zap.Int64("user_id", userID), zap.String("cause", string(cause)))
	}
	return u.Enrolled, nil
}

func (r *Resolver) finish(ctx context.Context, out *Outcome, userID int64) (*Outcome, error) {
	u, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.User = u
	monitoring.EnrollmentsTotal.WithLabelValues(string(out.Status)).Inc()
	return out, nil
}

// SelectCategory записывает категорию кандидата, не найденного в парке, создаёт
// связь с позицией категории и отправляет заявку в канал. Повторной проверки в парке нет.
func (r *Resolver) SelectCategory(ctx context.Context, userID int64, category models.Category) (*models.User, error) {
	if _, err := models.ParseCategory(string(category)); err != nil {
		return nil, eris.Wrap(err, "enrollment: select category")
	}
	if err := r.store.SetCategory(ctx, userID, category); err != nil {
		return nil, err
	}

	u, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	position := category.Position()
	if u.ReferrerID != nil {
		if _, err := r.store.UpsertReferralEdge(ctx, *u.ReferrerID, userID, position); err != nil {
			return nil, err
		}
	}

	app := notify.Application{
		UserID:     u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		Category:   category,
		ReferrerID: u.ReferrerID,
	}
	if u.Phone != nil {
		app.Phone = *u.Phone
	}
	if err := r.notifier.NewApplication(ctx, app); err != nil {
		// категория уже записана, заявку увидят в админке
		zap.L().Error("Не удалось отправить заявку в канал", zap.Int64("user_id", userID), zap.Error(err))
	}

	zap.L().Info("Категория выбрана",
		zap.Int64("user_id", userID),
		zap.String("category", string(category)),
		zap.String("position", string(position)))
	return u, nil
}
