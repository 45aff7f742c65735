// Package session хранит незавершённые регистрации в боте с ограниченным временем жизни.
package session

import (
	"context"
	"time"
)

// Stage: шаг регистрации
type Stage string

const (
	StageNone             Stage = ""
	StageAwaitingPhone    Stage = "awaiting_phone"
	StageAwaitingCategory Stage = "awaiting_category"
	StageAdminSearch      Stage = "admin_search" // администратор вводит номер для поиска
)

// Session: состояние регистрации одного пользователя
type Session struct {
	UserID     int64     `json:"user_id"`
	ReferrerID *int64    `json:"referrer_id,omitempty"` // из /start ref_<id>
	Stage      Stage     `json:"stage"`
	Phone      string    `json:"phone,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store: хранилище сессий; Get возвращает nil без ошибки, если сессии нет или она истекла
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}
