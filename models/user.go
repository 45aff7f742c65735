package models

import (
	"strings"
	"time"
)

// User: пользователь бота (кандидат, водитель или пригласивший)
type User struct {
	ID                 int64     `json:"id" db:"id"` // Telegram user id
	Username           string    `json:"username,omitempty" db:"username"`
	FullName           string    `json:"full_name" db:"full_name"`
	FirstName          string    `json:"first_name" db:"first_name"`
	Phone              *string   `json:"phone,omitempty" db:"phone"` // канонический вид +7XXXXXXXXXX
	Category           *Category `json:"category,omitempty" db:"category"`
	ReferrerID         *int64    `json:"referrer_id,omitempty" db:"referrer_id"`
	Enrolled           bool      `json:"enrolled" db:"enrolled"` // найден в парке
	ExternalDriverID   *string   `json:"external_driver_id,omitempty" db:"external_driver_id"`
	ExternalDriverName *string   `json:"external_driver_name,omitempty" db:"external_driver_name"`
	Position           *Position `json:"position,omitempty" db:"position"`
	IsAdmin            bool      `json:"is_admin" db:"is_admin"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}

// HasPhone сообщает, прошёл ли пользователь шаг ввода телефона
func (u *User) HasPhone() bool {
	return u.Phone != nil && *u.Phone != ""
}

// PositionOrUnknown возвращает позицию или PositionUnknown
func (u *User) PositionOrUnknown() Position {
	if u.Position == nil {
		return PositionUnknown
	}
	return *u.Position
}

// Enrollment: результат проверки в парке, записывается при каждой повторной проверке
type Enrollment struct {
	Phone      string
	Enrolled   bool
	DriverID   string
	DriverName string
	Position   Position
}

// DriverDisplayName собирает ФИО водителя, пропуская пустые части
func DriverDisplayName(lastName, firstName, middleName string) string {
	var parts []string
	for _, p := range []string{lastName, firstName, middleName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Не указано"
	}
	return strings.Join(parts, " ")
}

// StringPtr возвращает nil для пустой строки
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr возвращает указатель на копию значения
func Int64Ptr(v int64) *int64 {
	return &v
}
