// Package fleet — клиент Yandex Fleet API (fleet-api.taxi.yandex.net).
// Клиент только читает: поиск водителя по телефону, число выполненных заказов,
// грубая классификация позиции. Ошибки транспорта не выходят наружу, вместо
// них возвращаются типизированные результаты.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/monitoring"
)

const DefaultBaseURL = "https://fleet-api.taxi.yandex.net"

const (
	pathProfilesList     = "/v1/parks/driver-profiles/list"
	pathProfilesRetrieve = "/v1/parks/driver-profiles/retrieve"
	pathOrdersList       = "/v1/parks/orders/list"
)

const (
	opFindDriver       = "find_driver"
	opOrderCount       = "order_count"
	opClassifyPosition = "classify_position"
)

type Config struct {
	BaseURL       string
	ParkID        string
	ClientID      string
	APIKey        string
	Timeout       time.Duration // на один HTTP-запрос
	MinSpacing    time.Duration // минимальный интервал между запросами
	ProfileLimit  int           // сколько профилей забирать для поиска по телефону
	OrderPageSize int
	MaxPages      int
	OrderLookback time.Duration
}

// DefaultConfig: значения, с которыми парк работает без ошибок 429
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       10 * time.Second,
		MinSpacing:    1500 * time.Millisecond,
		ProfileLimit:  1000,
		OrderPageSize: 500,
		MaxPages:      50,
		OrderLookback: 5 * 365 * 24 * time.Hour,
	}
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ProfileLimit <= 0 {
		cfg.ProfileLimit = def.ProfileLimit
	}
	if cfg.OrderPageSize <= 0 {
		cfg.OrderPageSize = def.OrderPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.OrderLookback <= 0 {
		cfg.OrderLookback = def.OrderLookback
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// StatusError: ответ парка с кодом не 2xx
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fleet api status %d: %s", e.Code, e.Body)
}

// Cause: почему поиск не дал водителя
type Cause string

const (
	CauseNone     Cause = ""
	CauseNotFound Cause = "not_found"
	CauseTimeout  Cause = "timeout"
	CauseError    Cause = "error"
)

func causeOf(err error) Cause {
	if err == nil {
		return CauseNone
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return CauseTimeout
	}
	return CauseError
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("status_%d", statusErr.Code)
	}
	return string(causeOf(err))
}

// post выполняет один запрос с учётом лимита и таймаута и декодирует JSON-ответ в out
func (c *Client) post(ctx context.Context, op, path string, body, out any) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "fleet: rate limiter")
	}

	start := time.Now()
	defer func() {
		monitoring.FleetRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		monitoring.FleetRequestsTotal.WithLabelValues(op, outcomeOf(err)).Inc()
	}()

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "fleet: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return eris.Wrap(err, "fleet: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Park-ID", c.cfg.ParkID)
	req.Header.Set("X-Client-ID", c.cfg.ClientID)
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	req.Header.Set("Accept-Language", "ru")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "fleet: http error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "fleet: decode response")
	}
	return nil
}

func (c *Client) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", op), zap.String("cause", outcomeOf(err)), zap.Error(err))
	zap.L().Warn("⚠️ Ошибка запроса к API Яндекс Парка", fields...)
}

func (c *Client) parkQuery(driverID string) map[string]any {
	park := map[string]any{"id": c.cfg.ParkID}
	if driverID != "" {
		park["driver_profile"] = map[string]any{"id": driverID}
	}
	return park
}
