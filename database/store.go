package database

import (
	"context"
	"errors"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// ErrNotFound: запись отсутствует
var ErrNotFound = errors.New("not found")

// Store: типизированный набор операций над пользователями и реферальными связями.
// Реализации безопасны для одновременного вызова из бота и из сверки заказов;
// уникальность пары держится на insert-if-absent, а не на блокировках.
type Store interface {
	// UpsertUser вставляет пользователя, если его ещё нет; существующая строка не меняется
	UpsertUser(ctx context.Context, u *models.User) (inserted bool, err error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	// AttachReferrer записывает пригласившего, только если он ещё не записан
	AttachReferrer(ctx context.Context, userID, referrerID int64) (effective *int64, err error)
	SaveEnrollment(ctx context.Context, userID int64, e models.Enrollment) error
	SetCategory(ctx context.Context, userID int64, category models.Category) error
	SetPosition(ctx context.Context, userID int64, position models.Position) error
	SetAdmin(ctx context.Context, userID int64, admin bool) error
	ListAdmins(ctx context.Context) ([]models.User, error)

	UpsertReferralEdge(ctx context.Context, referrerID, referredID int64, position models.Position) (inserted bool, err error)
	GetReferral(ctx context.Context, referrerID, referredID int64) (*models.Referral, error)
	// SetOrderCount перезаписывает счётчик; без связи, но с referrer_id у пользователя создаёт связь
	SetOrderCount(ctx context.Context, referredID int64, count int) (updated bool, err error)
	MarkNotified(ctx context.Context, referrerID, referredID int64) error
	MarkBonusPaid(ctx context.Context, referrerID, referredID int64) error

	ListReferralsDueForCheck(ctx context.Context) ([]models.DueReferral, error)
	ListReferrerDueForCheck(ctx context.Context, referrerID int64) ([]models.DueReferral, error)
	ListEnrolledUsers(ctx context.Context) ([]models.DueReferral, error)
	ListReferrals(ctx context.Context, referrerID int64) ([]models.InvitedUser, error)
	ReferralStats(ctx context.Context, referrerID int64, thresholds models.Thresholds) (*models.ReferralStats, error)

	Ping(ctx context.Context) error
	Close()
}

// conn: общий минимум pgxpool и database/sql, на котором работают запросы sqlStore.
// Запросы пишутся с плейсхолдерами $N.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rows, error)
	ping(ctx context.Context) error
	close()
}

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// nullable возвращает nil для пустой строки, чтобы в базу писался NULL
func nullable[T ~string](v T) any {
	if v == "" {
		return nil
	}
	return string(v)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullablePtr[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return nullable(*v)
}
