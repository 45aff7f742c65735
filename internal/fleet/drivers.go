package fleet

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

type Car struct {
	Brand    string          `json:"brand"`
	Model    string          `json:"model"`
	Year     int             `json:"year"`
	Number   string          `json:"normalized_number"`
	Category []string        `json:"category"`
	Cargo    json.RawMessage `json:"cargo"`
}

type Driver struct {
	ID         string
	FirstName  string
	LastName   string
	MiddleName string
	Phones     []string
	WorkStatus string
	Car        Car
}

// DisplayName: «Фамилия Имя Отчество»
func (d *Driver) DisplayName() string {
	return models.DriverDisplayName(d.LastName, d.FirstName, d.MiddleName)
}

// LookupResult: итог поиска водителя по телефону
type LookupResult struct {
	Found  bool
	Driver *Driver
	Cause  Cause
	Err    error
}

// phoneEntry хранит телефон из профиля (строка или объект с полем number)
type phoneEntry string

func (p *phoneEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = phoneEntry(s)
		return nil
	}
	var obj struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = phoneEntry(obj.Number)
	return nil
}

type profilesResponse struct {
	DriverProfiles []struct {
		DriverProfile struct {
			ID         string       `json:"id"`
			FirstName  string       `json:"first_name"`
			LastName   string       `json:"last_name"`
			MiddleName string       `json:"middle_name"`
			Phones     []phoneEntry `json:"phones"`
			WorkStatus string       `json:"work_status"`
		} `json:"driver_profile"`
		Car Car `json:"car"`
	} `json:"driver_profiles"`
}

// FindDriverByPhone ищет водителя парка по телефону.
// У API нет фильтра по телефону: забираем до ProfileLimit профилей и сравниваем
// номера в каноническом виде.
func (c *Client) FindDriverByPhone(ctx context.Context, rawPhone string) LookupResult {
	body := map[string]any{
		"fields": map[string]any{
			"driver_profile": []string{"id", "phones", "first_name", "last_name", "middle_name", "work_status"},
			"car":            []string{"brand", "model", "normalized_number", "year", "category", "cargo"},
		},
		"query": map[string]any{"park": c.parkQuery("")},
		"limit": c.cfg.ProfileLimit,
	}

	var resp profilesResponse
	if err := c.post(ctx, opFindDriver, pathProfilesList, body, &resp); err != nil {
		c.logFailure(opFindDriver, err)
		return LookupResult{Cause: causeOf(err), Err: err}
	}

	for _, item := range resp.DriverProfiles {
		profile := item.DriverProfile
		for _, p := range profile.Phones {
			if !phone.Equal(string(p), rawPhone) {
				continue
			}
			phones := make([]string, 0, len(profile.Phones))
			for _, pp := range profile.Phones {
				phones = append(phones, string(pp))
			}
			driver := &Driver{
				ID:         profile.ID,
				FirstName:  profile.FirstName,
				LastName:   profile.LastName,
				MiddleName: profile.MiddleName,
				Phones:     phones,
				WorkStatus: profile.WorkStatus,
				Car:        item.Car,
			}
			zap.L().Info("✅ Водитель найден в парке",
				zap.String("driver_id", driver.ID),
				zap.String("work_status", driver.WorkStatus))
			return LookupResult{Found: true, Driver: driver}
		}
	}

	if len(resp.DriverProfiles) >= c.cfg.ProfileLimit {
		zap.L().Warn("Список профилей упёрся в лимит, водитель мог не попасть в выборку",
			zap.Int("limit", c.cfg.ProfileLimit))
	}
	return LookupResult{Cause: CauseNotFound}
}
