package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Поля даты, по которым фильтруются заказы
const (
	FieldBookedAt = "booked_at"
	FieldEndedAt  = "ended_at"
)

const statusComplete = "complete"

// OrderCountResult: число выполненных заказов.
// Known=false означает «неизвестно», а не ноль: ни один вариант запроса не дал
// разобранной страницы. Known=true с Count=0, подтверждённый ноль.
type OrderCountResult struct {
	Count int
	Known bool
	Pages int
	Field string
	Err   error
}

type ordersResponse struct {
	Orders []json.RawMessage `json:"orders"`
	Cursor string            `json:"cursor"`
}

type pageCount struct {
	count int
	pages int
}

// OrderCount считает выполненные заказы водителя за OrderLookback.
// Основной запрос фильтрует по booked_at; если он упал или первая страница пуста,
// делается один запрос по ended_at.
func (c *Client) OrderCount(ctx context.Context, driverID string) OrderCountResult {
	to := c.now().UTC()
	from := to.Add(-c.cfg.OrderLookback)

	primary, primaryErr := c.countOrders(ctx, driverID, FieldBookedAt, from, to)
	if primaryErr == nil && primary.count > 0 {
		return OrderCountResult{Count: primary.count, Known: true, Pages: primary.pages, Field: FieldBookedAt}
	}
	if primaryErr != nil {
		c.logFailure(opOrderCount, primaryErr, zap.String("driver_id", driverID), zap.String("field", FieldBookedAt))
		if ctx.Err() != nil {
			return OrderCountResult{Err: primaryErr}
		}
	}

	fallback, fallbackErr := c.countOrders(ctx, driverID, FieldEndedAt, from, to)
	switch {
	case fallbackErr == nil && (fallback.count > 0 || primaryErr != nil):
		zap.L().Info("Заказы посчитаны по резервному полю даты",
			zap.String("driver_id", driverID), zap.Int("count", fallback.count))
		return OrderCountResult{Count: fallback.count, Known: true, Pages: fallback.pages, Field: FieldEndedAt}
	case primaryErr == nil:
		if fallbackErr != nil {
			c.logFailure(opOrderCount, fallbackErr, zap.String("driver_id", driverID), zap.String("field", FieldEndedAt))
		}
		return OrderCountResult{Count: 0, Known: true, Pages: primary.pages, Field: FieldBookedAt}
	default:
		c.logFailure(opOrderCount, fallbackErr, zap.String("driver_id", driverID), zap.String("field", FieldEndedAt))
		return OrderCountResult{Err: errors.Join(primaryErr, fallbackErr)}
	}
}

// countOrders листает страницы курсором, пока курсор не пуст и страницы полные.
// MaxPages ограничивает обход, даже если курсор не кончается.
func (c *Client) countOrders(ctx context.Context, driverID, field string, from, to time.Time) (pageCount, error) {
	var (
		res    pageCount
		cursor string
	)
	for res.pages < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		park := c.parkQuery(driverID)
		park["order"] = map[string]any{
			"statuses": []string{statusComplete},
			field: map[string]string{
				"from": from.Format(time.RFC3339),
				"to":   to.Format(time.RFC3339),
			},
		}
		body := map[string]any{
			"limit": c.cfg.OrderPageSize,
			"query": map[string]any{"park": park},
		}
		if cursor != "" {
			body["cursor"] = cursor
		}

		var resp ordersResponse
		if err := c.post(ctx, opOrderCount, pathOrdersList, body, &resp); err != nil {
			return res, err
		}
		res.pages++
		res.count += len(resp.Orders)

		if resp.Cursor == "" || len(resp.Orders) < c.cfg.OrderPageSize {
			return res, nil
		}
		cursor = resp.Cursor
	}

	zap.L().Warn("Достигнут потолок страниц заказов",
		zap.String("driver_id", driverID),
		zap.Int("pages", res.pages),
		zap.Int("count", res.count))
	return res, nil
}
