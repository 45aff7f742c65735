// Package phone приводит телефонные номера к одному сравнимому виду.
package phone

import (
	"regexp"
	"strings"
)

var validPattern = regexp.MustCompile(`^(\+7|8|7)?\d{10}$`)

// Normalize возвращает канонический вид номера: "+" и цифры.
// Функция чистая и тотальная; используется и для сравнения, поэтому применяется
// одинаково к вводу пользователя и к телефонам из парка.
func Normalize(s string) string {
	cleaned := clean(s)

	switch {
	case strings.HasPrefix(cleaned, "8"):
		cleaned = "+7" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7"):
		cleaned = "+" + cleaned
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+7" + cleaned
	}
	return cleaned
}

// Valid проверяет формат российского номера: +79XXXXXXXXX, 89XXXXXXXXX, 79XXXXXXXXX
// или 10 цифр без кода.
func Valid(s string) bool {
	return validPattern.MatchString(clean(s))
}

// Equal сравнивает номера по каноническому виду.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// clean оставляет цифры и ведущий "+"
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
