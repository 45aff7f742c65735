package models

import (
	"time"
)

// Referral: связь пригласивший → приглашённый, одна на пару
type Referral struct {
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"` // кто пригласил
	ReferredID int64     `json:"referred_id" db:"referred_id"` // кто пришёл
	OrderCount int       `json:"order_count" db:"order_count"` // последнее наблюдаемое значение, без зажима
	Notified   bool      `json:"notified" db:"notified"`       // уведомление о цели отправлено
	BonusPaid  bool      `json:"bonus_paid" db:"bonus_paid"`   // бонус выплачен вручную
	Position   *Position `json:"position,omitempty" db:"position"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// DueReferral: элемент очереди сверки заказов
type DueReferral struct {
	ReferrerID *int64   `json:"referrer_id,omitempty"`
	ReferredID int64    `json:"referred_id"`
	DriverID   string   `json:"driver_id"`
	Position   Position `json:"position"`
	OrderCount int      `json:"order_count"`
	Notified   bool     `json:"notified"`
	HasEdge    bool     `json:"has_edge"` // false: запись из резервного списка без связи
}

// InvitedUser: приглашённый пользователь с прогрессом по заказам
type InvitedUser struct {
	UserID     int64     `json:"user_id"`
	FullName   string    `json:"full_name"`
	Username   string    `json:"username,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Category   *Category `json:"category,omitempty"`
	Enrolled   bool      `json:"enrolled"`
	Position   *Position `json:"position,omitempty"`
	OrderCount int       `json:"order_count"`
	Notified   bool      `json:"notified"`
	BonusPaid  bool      `json:"bonus_paid"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReferralStats: сводка по приглашённым
type ReferralStats struct {
	InvitedCount   int `json:"invited_count"`
	CompletedCount int `json:"completed_count"` // достигли порога своей позиции
	BonusPaidCount int `json:"bonus_paid_count"`
}
