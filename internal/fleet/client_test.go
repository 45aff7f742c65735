package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

type orderQuery struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
	Query  struct {
		Park struct {
			ID            string `json:"id"`
			DriverProfile struct {
				ID string `json:"id"`
			} `json:"driver_profile"`
			Order map[string]json.RawMessage `json:"order"`
		} `json:"park"`
	} `json:"query"`
}

func (q orderQuery) field() string {
	for _, f := range []string{FieldBookedAt, FieldEndedAt} {
		if _, ok := q.Query.Park.Order[f]; ok {
			return f
		}
	}
	return ""
}

// fakePark: поддельный API парка; handler решает, что ответить на запрос заказов
type fakePark struct {
	mu       sync.Mutex
	requests []orderQuery
	orders   func(q orderQuery) (int, any)
}

func newFakePark(t *testing.T, fp *fakePark) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "park-1", r.Header.Get("X-Park-ID"))
		assert.Equal(t, "client-1", r.Header.Get("X-Client-ID"))
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		assert.Equal(t, "ru", r.Header.Get("Accept-Language"))

		switch r.URL.Path {
		case pathProfilesList:
			writeJSON(w, http.StatusOK, map[string]any{
				"driver_profiles": []any{
					map[string]any{
						"driver_profile": map[string]any{
							"id": "drv0", "first_name": "Пётр", "last_name": "Петров",
							"phones": []any{"+79990000000"},
						},
					},
					map[string]any{
						"driver_profile": map[string]any{
							"id": "drv1", "first_name": "Иван", "last_name": "Иванов", "middle_name": "Иванович",
							"phones": []any{map[string]any{"number": "8 (999) 123-45-67"}},
						},
						"car": map[string]any{"brand": "ГАЗ", "model": "Газель Next"},
					},
				},
			})
		case pathProfilesRetrieve:
			writeJSON(w, http.StatusOK, map[string]any{
				"car": map[string]any{"brand": "Kia", "model": "Rio", "category": []string{"econom", "cargo"}},
			})
		case pathOrdersList:
			var q orderQuery
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
			fp.mu.Lock()
			fp.requests = append(fp.requests, q)
			fp.mu.Unlock()
			status, body := fp.orders(q)
			writeJSON(w, status, body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:       srv.URL,
		ParkID:        "park-1",
		ClientID:      "client-1",
		APIKey:        "key-1",
		Timeout:       time.Second,
		OrderPageSize: 2,
		MaxPages:      5,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func page(n int, cursor string) map[string]any {
	orders := make([]map[string]string, n)
	for i := range orders {
		orders[i] = map[string]string{"id": fmt.Sprintf("o%d", i), "status": statusComplete}
	}
	return map[string]any{"orders": orders, "cursor": cursor}
}

func TestFindDriverByPhone(t *testing.T) {
	client := newFakePark(t, &fakePark{})

	res := client.FindDriverByPhone(context.Background(), "+79991234567")
	require.True(t, res.Found)
	assert.Equal(t, CauseNone, res.Cause)
	assert.Equal(t, "drv1", res.Driver.ID)
	assert.Equal(t, "Иванов Иван Иванович", res.Driver.DisplayName())
	assert.Equal(t, []string{"8 (999) 123-45-67"}, res.Driver.Phones)

	res = client.FindDriverByPhone(context.Background(), "89995554433")
	assert.False(t, res.Found)
	assert.Equal(t, CauseNotFound, res.Cause)
	assert.Nil(t, res.Driver)
}

func TestFindDriverByPhoneTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	res := client.FindDriverByPhone(context.Background(), "+79991234567")
	assert.False(t, res.Found)
	assert.Equal(t, CauseTimeout, res.Cause)
	assert.Error(t, res.Err)
}

func TestFindDriverByPhoneServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "slow down"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL})
	res := client.FindDriverByPhone(context.Background(), "+79991234567")
	assert.False(t, res.Found)
	assert.Equal(t, CauseError, res.Cause)

	var statusErr *StatusError
	require.ErrorAs(t, res.Err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestOrderCountPaginates(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) {
		switch q.Cursor {
		case "":
			return http.StatusOK, page(2, "c1")
		case "c1":
			return http.StatusOK, page(2, "c2")
		default:
			return http.StatusOK, page(1, "")
		}
	}}
	client := newFakePark(t, fp)

	res := client.OrderCount(context.Background(), "drv1")
	assert.True(t, res.Known)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, FieldBookedAt, res.Field)

	require.Len(t, fp.requests, 3)
	first := fp.requests[0]
	assert.Equal(t, "park-1", first.Query.Park.ID)
	assert.Equal(t, "drv1", first.Query.Park.DriverProfile.ID)
	assert.Equal(t, 2, first.Limit)
	assert.JSONEq(t, `["complete"]`, string(first.Query.Park.Order["statuses"]))

	var window struct{ From, To time.Time }
	require.NoError(t, json.Unmarshal(first.Query.Park.Order[FieldBookedAt], &window))
	assert.True(t, window.To.Sub(window.From) > 4*365*24*time.Hour)
}

func TestOrderCountStopsAtPageCeiling(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) {
		return http.StatusOK, page(2, "forever")
	}}
	client := newFakePark(t, fp)

	res := client.OrderCount(context.Background(), "drv1")
	assert.True(t, res.Known)
	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, 10, res.Count)
	assert.Len(t, fp.requests, 5)
}

func TestOrderCountFallsBackToEndedAt(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) {
		if q.field() == FieldBookedAt {
			return http.StatusBadRequest, map[string]string{"message": "bad field"}
		}
		return http.StatusOK, page(1, "")
	}}
	client := newFakePark(t, fp)

	res := client.OrderCount(context.Background(), "drv1")
	assert.True(t, res.Known)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, FieldEndedAt, res.Field)
}

func TestOrderCountEmptyFirstPageTriesFallback(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) {
		if q.field() == FieldBookedAt {
			return http.StatusOK, page(0, "")
		}
		return http.StatusOK, page(2, "")
	}}
	client := newFakePark(t, fp)

	res := client.OrderCount(context.Background(), "drv1")
	assert.True(t, res.Known)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, FieldEndedAt, res.Field)
	assert.Len(t, fp.requests, 2)
}

func TestOrderCountConfirmedZeroVersusUnknown(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) {
		if q.Query.Park.DriverProfile.ID == "ghost" {
			return http.StatusNotFound, map[string]string{"message": "driver not found"}
		}
		return http.StatusOK, page(0, "")
	}}
	client := newFakePark(t, fp)

	zero := client.OrderCount(context.Background(), "drv-new")
	assert.True(t, zero.Known)
	assert.Equal(t, 0, zero.Count)
	assert.NoError(t, zero.Err)

	unknown := client.OrderCount(context.Background(), "ghost")
	assert.False(t, unknown.Known)
	assert.Equal(t, 0, unknown.Count)
	assert.Error(t, unknown.Err)
}

func TestClassifyPosition(t *testing.T) {
	client := newFakePark(t, &fakePark{})

	res := client.ClassifyPosition(context.Background(), "drv1")
	assert.True(t, res.Known())
	assert.Equal(t, models.PositionCargo, res.Position)
	assert.Equal(t, SourceCategory, res.Source)
}

func TestClassifyPositionUnknownOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	t.Cleanup(srv.Close)

	res := NewClient(Config{BaseURL: srv.URL}).ClassifyPosition(context.Background(), "drv1")
	assert.False(t, res.Known())
	assert.Error(t, res.Err)
}

func TestClassifyCar(t *testing.T) {
	tests := []struct {
		name   string
		car    Car
		want   models.Position
		source string
	}{
		{"cargo category", Car{Brand: "Kia", Category: []string{"Cargo"}}, models.PositionCargo, SourceCategory},
		{"cargo block", Car{Brand: "Kia", Cargo: json.RawMessage(`{"carrying_capacity":1500}`)}, models.PositionCargo, SourceCargo},
		{"empty cargo block", Car{Brand: "Kia", Cargo: json.RawMessage(`{}`)}, models.PositionExpress, SourceDefault},
		{"gazelle", Car{Brand: "ГАЗ", Model: "ГАЗель Next"}, models.PositionCargo, SourceKeyword},
		{"sprinter", Car{Brand: "Mercedes-Benz", Model: "Sprinter"}, models.PositionCargo, SourceKeyword},
		{"sedan", Car{Brand: "Hyundai", Model: "Solaris"}, models.PositionExpress, SourceDefault},
		{"no car", Car{}, models.PositionExpress, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ClassifyCar(tt.car)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestRateLimiterSpacesCalls(t *testing.T) {
	fp := &fakePark{orders: func(q orderQuery) (int, any) { return http.StatusOK, page(1, "") }}
	client := newFakePark(t, fp)
	client = NewClient(Config{
		BaseURL:    client.cfg.BaseURL,
		ParkID:     "park-1",
		ClientID:   "client-1",
		APIKey:     "key-1",
		MinSpacing: 100 * time.Millisecond,
	})

	start := time.Now()
	client.OrderCount(context.Background(), "drv1")
	client.OrderCount(context.Background(), "drv1")
	client.OrderCount(context.Background(), "drv1")
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}
