package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const keyPrefix = "referral-bot:session:"

// Redis: сессии в Redis, общие для нескольких экземпляров бота
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis подключается к Redis и проверяет соединение
func NewRedis(ctx context.Context, addr, password string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "session: connect to redis %s", addr)
	}

	zap.L().Info("✅ Подключение к Redis установлено", zap.String("addr", addr))
	return &Redis{client: client, ttl: ttl}, nil
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (r *Redis) Get(ctx context.Context, userID int64) (*Session, error) {
	val, err := r.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "session: get")
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, eris.Wrap(err, "session: decode")
	}
	return &s, nil
}

func (r *Redis) Put(ctx context.Context, s *Session) error {
	stored := *s
	stored.UpdatedAt = time.Now()
	val, err := json.Marshal(stored)
	if err != nil {
		return eris.Wrap(err, "session: encode")
	}
	return eris.Wrap(r.client.Set(ctx, key(s.UserID), val, r.ttl).Err(), "session: put")
}

func (r *Redis) Delete(ctx context.Context, userID int64) error {
	return eris.Wrap(r.client.Del(ctx, key(userID)).Err(), "session: delete")
}

func (r *Redis) Close() error {
	return r.client.Close()
}
