package middleware

import (
	"sync"
	"time"
)

// RateLimiter: скользящее окно попыток по ключу (ввод телефона в боте)
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	swept    time.Time // последняя полная очистка
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Limit регистрирует попытку; true, лимит превышен, попытка не засчитана
func (rl *RateLimiter) Limit(key int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evict(now)

	// Очищаем старые попытки
	var valid []time.Time
	for _, t := range rl.attempts[key] {
		if now.Sub(t) < rl.window {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.attempts[key] = valid
		return true // превышен лимит
	}

	rl.attempts[key] = append(valid, now)
	return false
}

// evict раз в окно удаляет ключи без попыток внутри окна
func (rl *RateLimiter) evict(now time.Time) {
	if now.Sub(rl.swept) < rl.window {
		return
	}
	rl.swept = now
	for key, ts := range rl.attempts {
		if len(ts) == 0 || now.Sub(ts[len(ts)-1]) >= rl.window {
			delete(rl.attempts, key)
		}
	}
}

// Reset забывает попытки ключа (после успешной проверки)
func (rl *RateLimiter) Reset(key int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}
