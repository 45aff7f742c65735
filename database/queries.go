package database

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// sqlStore реализует Store поверх conn; диалект общий для PostgreSQL и SQLite
type sqlStore struct {
	db conn
}

const userColumns = `id, username, full_name, first_name, phone, category, referrer_id,
	enrolled, external_driver_id, external_driver_name, position, is_admin, created_at`

func scanUser(r row) (*models.User, error) {
	var (
		u        models.User
		category *string
		position *string
	)
	err := r.Scan(&u.ID, &u.Username, &u.FullName, &u.FirstName, &u.Phone, &category, &u.ReferrerID,
		&u.Enrolled, &u.ExternalDriverID, &u.ExternalDriverName, &position, &u.IsAdmin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if category != nil && *category != "" {
		c := models.Category(*category)
		u.Category = &c
	}
	if position != nil {
		u.Position = models.Position(*position).Ptr()
	}
	return &u, nil
}

func (s *sqlStore) UpsertUser(ctx context.Context, u *models.User) (bool, error) {
	n, err := s.db.exec(ctx, `
		INSERT INTO users (id, username, full_name, first_name, phone, category, referrer_id, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Username, u.FullName, u.FirstName, nullablePtr(u.Phone), nullablePtr(u.Category),
		nullableInt64(u.ReferrerID), u.IsAdmin)
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert user %d", u.ID)
	}
	if n == 0 {
		zap.L().Debug("Пользователь уже зарегистрирован, данные не перезаписаны", zap.Int64("user_id", u.ID))
	}
	return n > 0, nil
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, wrapNotFound(err, "store: get user")
	}
	return u, nil
}

func (s *sqlStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	u, err := scanUser(s.db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1 ORDER BY created_at LIMIT 1`, phone))
	if err != nil {
		return nil, wrapNotFound(err, "store: get user by phone")
	}
	return u, nil
}

func (s *sqlStore) AttachReferrer(ctx context.Context, userID, referrerID int64) (*int64, error) {
	if _, err := s.db.exec(ctx, `
		UPDATE users SET referrer_id = $2
		WHERE id = $1 AND referrer_id IS NULL AND id <> $2`,
		userID, referrerID); err != nil {
		return nil, eris.Wrapf(err, "store: attach referrer %d to %d", referrerID, userID)
	}

	var effective *int64
	if err := s.db.queryRow(ctx, `SELECT referrer_id FROM users WHERE id = $1`, userID).Scan(&effective); err != nil {
		return nil, wrapNotFound(err, "store: read referrer")
	}
	return effective, nil
}

func (s *sqlStore) SaveEnrollment(ctx context.Context, userID int64, e models.Enrollment) error {
	var driverID, driverName any
	if e.Enrolled {
		driverID = nullable(e.DriverID)
		driverName = nullable(e.DriverName)
	}
	n, err := s.db.exec(ctx, `
		UPDATE users SET
			phone = COALESCE(phone, $2),
			enrolled = $3,
			external_driver_id = $4,
			external_driver_name = $5,
			position = COALESCE(CAST($6 AS TEXT), position)
		WHERE id = $1`,
		userID, nullable(e.Phone), e.Enrolled && driverID != nil, driverID, driverName, nullable(e.Position))
	if err != nil {
		return eris.Wrapf(err, "store: save enrollment for %d", userID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: save enrollment for %d", userID)
	}
	return nil
}

func (s *sqlStore) SetCategory(ctx context.Context, userID int64, category models.Category) error {
	n, err := s.db.exec(ctx, `UPDATE users SET category = $2 WHERE id = $1`, userID, string(category))
	if err != nil {
		return eris.Wrapf(err, "store: set category for %d", userID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: set category for %d", userID)
	}
	return nil
}

func (s *sqlStore) SetPosition(ctx context.Context, userID int64, position models.Position) error {
	if !position.Known() {
		return nil
	}
	if _, err := s.db.exec(ctx, `UPDATE users SET position = $2 WHERE id = $1`, userID, string(position)); err != nil {
		return eris.Wrapf(err, "store: set position for %d", userID)
	}
	if _, err := s.db.exec(ctx, `
		UPDATE referrals SET position = $2, updated_at = CURRENT_TIMESTAMP
		WHERE referred_id = $1`, userID, string(position)); err != nil {
		return eris.Wrapf(err, "store: refresh edge position for %d", userID)
	}
	return nil
}

func (s *sqlStore) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	n, err := s.db.exec(ctx, `UPDATE users SET is_admin = $2 WHERE id = $1`, userID, admin)
	if err != nil {
		return eris.Wrapf(err, "store: set admin for %d", userID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: set admin for %d", userID)
	}
	return nil
}

func (s *sqlStore) ListAdmins(ctx context.Context) ([]models.User, error) {
	rs, err := s.db.query(ctx, `SELECT `+userColumns+` FROM users WHERE is_admin = TRUE ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list admins")
	}
	defer rs.Close()

	var admins []models.User
	for rs.Next() {
		u, err := scanUser(rs)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan admin")
		}
		admins = append(admins, *u)
	}
	return admins, eris.Wrap(rs.Err(), "store: list admins")
}

func (s *sqlStore) UpsertReferralEdge(ctx context.Context, referrerID, referredID int64, position models.Position) (bool, error) {
	n, err := s.db.exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (referrer_id, referred_id) DO NOTHING`,
		referrerID, referredID, nullable(position))
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert referral %d -> %d", referrerID, referredID)
	}
	return n > 0, nil
}

func (s *sqlStore) GetReferral(ctx context.Context, referrerID, referredID int64) (*models.Referral, error) {
	var (
		r        models.Referral
		position *string
	)
	err := s.db.queryRow(ctx, `
		SELECT referrer_id, referred_id, order_count, notified, bonus_paid, position, created_at, updated_at
		FROM referrals WHERE referrer_id = $1 AND referred_id = $2`,
		referrerID, referredID).
		Scan(&r.ReferrerID, &r.ReferredID, &r.OrderCount, &r.Notified, &r.BonusPaid, &position, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "store: get referral")
	}
	if position != nil {
		r.Position = models.Position(*position).Ptr()
	}
	return &r, nil
}

func (s *sqlStore) SetOrderCount(ctx context.Context, referredID int64, count int) (bool, error) {
	n, err := s.db.exec(ctx, `
		UPDATE referrals SET order_count = $2, updated_at = CURRENT_TIMESTAMP
		WHERE referred_id = $1`, referredID, count)
	if err != nil {
		return false, eris.Wrapf(err, "store: set order count for %d", referredID)
	}
	if n > 0 {
		return true, nil
	}

	// Связи нет: создаём её по referrer_id пользователя
	n, err = s.db.exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, order_count, position)
		SELECT referrer_id, id, $2, position FROM users
		WHERE id = $1 AND referrer_id IS NOT NULL AND referrer_id <> id
		ON CONFLICT (referrer_id, referred_id) DO UPDATE SET order_count = excluded.order_count`,
		referredID, count)
	if err != nil {
		return false, eris.Wrapf(err, "store: heal referral for %d", referredID)
	}
	if n > 0 {
		zap.L().Warn("🩹 Восстановлена отсутствующая реферальная связь",
			zap.Int64("referred_id", referredID), zap.Int("order_count", count))
	}
	return n > 0, nil
}

func (s *sqlStore) MarkNotified(ctx context.Context, referrerID, referredID int64) error {
	_, err := s.db.exec(ctx, `
		UPDATE referrals SET notified = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE referrer_id = $1 AND referred_id = $2 AND notified = FALSE`,
		referrerID, referredID)
	return eris.Wrapf(err, "store: mark notified %d -> %d", referrerID, referredID)
}

func (s *sqlStore) MarkBonusPaid(ctx context.Context, referrerID, referredID int64) error {
	n, err := s.db.exec(ctx, `
		UPDATE referrals SET bonus_paid = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE referrer_id = $1 AND referred_id = $2`,
		referrerID, referredID)
	if err != nil {
		return eris.Wrapf(err, "store: mark bonus paid %d -> %d", referrerID, referredID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "store: mark bonus paid %d -> %d", referrerID, referredID)
	}
	return nil
}

const dueFromEdges = `
	SELECT r.referrer_id, r.referred_id, u.external_driver_id, COALESCE(r.position, u.position, ''),
		r.order_count, r.notified, TRUE
	FROM referrals r
	JOIN users u ON u.id = r.referred_id
	WHERE u.enrolled = TRUE AND u.external_driver_id IS NOT NULL AND u.external_driver_id <> ''`

func (s *sqlStore) ListReferralsDueForCheck(ctx context.Context) ([]models.DueReferral, error) {
	return s.listDue(ctx, dueFromEdges+` ORDER BY r.created_at, r.referred_id`)
}

func (s *sqlStore) ListReferrerDueForCheck(ctx context.Context, referrerID int64) ([]models.DueReferral, error) {
	return s.listDue(ctx, dueFromEdges+` AND r.referrer_id = $1 ORDER BY r.created_at, r.referred_id`, referrerID)
}

func (s *sqlStore) ListEnrolledUsers(ctx context.Context) ([]models.DueReferral, error) {
	return s.listDue(ctx, `
		SELECT COALESCE(r.referrer_id, u.referrer_id), u.id, u.external_driver_id, COALESCE(r.position, u.position, ''),
			COALESCE(r.order_count, 0), COALESCE(r.notified, FALSE), r.referred_id IS NOT NULL
		FROM users u
		LEFT JOIN referrals r ON r.referred_id = u.id
		WHERE u.enrolled = TRUE AND u.external_driver_id IS NOT NULL AND u.external_driver_id <> ''
		ORDER BY u.created_at, u.id`)
}

func (s *sqlStore) listDue(ctx context.Context, query string, args ...any) ([]models.DueReferral, error) {
	rs, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list due referrals")
	}
	defer rs.Close()

	var out []models.DueReferral
	for rs.Next() {
		var (
			d        models.DueReferral
			position string
		)
		if err := rs.Scan(&d.ReferrerID, &d.ReferredID, &d.DriverID, &position, &d.OrderCount, &d.Notified, &d.HasEdge); err != nil {
			return nil, eris.Wrap(err, "store: scan due referral")
		}
		d.Position = models.Position(position)
		out = append(out, d)
	}
	return out, eris.Wrap(rs.Err(), "store: list due referrals")
}

func (s *sqlStore) ListReferrals(ctx context.Context, referrerID int64) ([]models.InvitedUser, error) {
	rs, err := s.db.query(ctx, `
		SELECT u.id, u.full_name, u.username, u.phone, u.category, u.enrolled,
			COALESCE(r.position, u.position), COALESCE(r.order_count, 0),
			COALESCE(r.notified, FALSE), COALESCE(r.bonus_paid, FALSE), u.created_at
		FROM users u
		LEFT JOIN referrals r ON r.referred_id = u.id AND r.referrer_id = $1
		WHERE u.referrer_id = $1
		ORDER BY u.created_at DESC, u.id DESC`, referrerID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list referrals of %d", referrerID)
	}
	defer rs.Close()

	var out []models.InvitedUser
	for rs.Next() {
		var (
			iu       models.InvitedUser
			category *string
			position *string
		)
		if err := rs.Scan(&iu.UserID, &iu.FullName, &iu.Username, &iu.Phone, &category, &iu.Enrolled,
			&position, &iu.OrderCount, &iu.Notified, &iu.BonusPaid, &iu.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan referral")
		}
		if category != nil && *category != "" {
			c := models.Category(*category)
			iu.Category = &c
		}
		if position != nil {
			iu.Position = models.Position(*position).Ptr()
		}
		out = append(out, iu)
	}
	return out, eris.Wrapf(rs.Err(), "store: list referrals of %d", referrerID)
}

// ReferralStats считает приглашённых и тех, кто достиг порога своей позиции
func (s *sqlStore) ReferralStats(ctx context.Context, referrerID int64, thresholds models.Thresholds) (*models.ReferralStats, error) {
	invited, err := s.ListReferrals(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	stats := &models.ReferralStats{InvitedCount: len(invited)}
	for _, iu := range invited {
		if iu.Position != nil && thresholds.Reached(*iu.Position, iu.OrderCount) {
			stats.CompletedCount++
		}
		if iu.BonusPaid {
			stats.BonusPaidCount++
		}
	}
	return stats, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.ping(ctx), "store: ping")
}

func (s *sqlStore) Close() {
	s.db.close()
}

// wrapNotFound приводит «нет строк» драйвера к ErrNotFound
func wrapNotFound(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return eris.Wrap(ErrNotFound, msg)
	}
	return eris.Wrap(err, msg)
}
