package fleet

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// Признак, по которому определена позиция
const (
	SourceCategory = "category"
	SourceCargo    = "cargo_block"
	SourceKeyword  = "keyword"
	SourceDefault  = "default"
)

// cargoKeywords: марки и модели грузовых машин, в нижнем регистре
var cargoKeywords = []string{
	"газель", "gazel", "соболь", "sobol", "валдай",
	"sprinter", "спринтер", "transit", "транзит",
	"фургон", "ducato", "дукато", "crafter", "boxer", "jumper",
	"master", "movano", "daily", "porter", "портер", "hd78", "canter",
}

// PositionResult: позиция водителя; Position пустая, если запрос не удался
type PositionResult struct {
	Position models.Position
	Source   string
	Err      error
}

// Known сообщает, удалось ли определить позицию
func (r PositionResult) Known() bool {
	return r.Position.Known()
}

type retrieveResponse struct {
	Car Car `json:"car"`
}

// ClassifyPosition определяет позицию по машине водителя. Эвристика: данные
// парка не хранят позицию явно, результат перезаписывается при уточнении.
func (c *Client) ClassifyPosition(ctx context.Context, driverID string) PositionResult {
	body := map[string]any{
		"fields": map[string]any{
			"driver_profile": []string{"id", "work_status"},
			"car":            []string{"brand", "model", "category", "cargo"},
		},
		"query": map[string]any{"park": c.parkQuery(driverID)},
	}

	var resp retrieveResponse
	if err := c.post(ctx, opClassifyPosition, pathProfilesRetrieve, body, &resp); err != nil {
		c.logFailure(opClassifyPosition, err, zap.String("driver_id", driverID))
		return PositionResult{Err: err}
	}

	position, source := ClassifyCar(resp.Car)
	zap.L().Debug("Позиция водителя определена",
		zap.String("driver_id", driverID),
		zap.String("position", string(position)),
		zap.String("source", source))
	return PositionResult{Position: position, Source: source}
}

// ClassifyCar: явная отметка cargo, затем марка/модель, иначе экспресс
func ClassifyCar(car Car) (models.Position, string) {
	for _, cat := range car.Category {
		if strings.EqualFold(strings.TrimSpace(cat), "cargo") {
			return models.PositionCargo, SourceCategory
		}
	}
	if cargo := strings.TrimSpace(string(car.Cargo)); cargo != "" && cargo != "null" && cargo != "{}" {
		return models.PositionCargo, SourceCargo
	}

	vehicle := strings.ToLower(car.Brand + " " + car.Model)
	for _, kw := range cargoKeywords {
		if strings.Contains(vehicle, kw) {
			return models.PositionCargo, SourceKeyword
		}
	}
	return models.PositionExpress, SourceDefault
}
