package config

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// thresholdsFile описывает формат THRESHOLDS_FILE:
//
//	cargo: 30
//	express: 45
type thresholdsFile struct {
	Cargo   *int `yaml:"cargo"`
	Express *int `yaml:"express"`
}

// LoadThresholds читает пороги из YAML; отсутствующие ключи берутся по умолчанию.
// Пустой путь: пороги по умолчанию.
func LoadThresholds(path string) (models.Thresholds, error) {
	thresholds := models.DefaultThresholds()
	if path == "" {
		return thresholds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read thresholds %s", path)
	}

	var f thresholdsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse thresholds %s", path)
	}

	for position, v := range map[models.Position]*int{
		models.PositionCargo:   f.Cargo,
		models.PositionExpress: f.Express,
	} {
		if v == nil {
			continue
		}
		if *v <= 0 {
			return nil, eris.Errorf("config: threshold for %s must be positive, got %d", position, *v)
		}
		thresholds[position] = *v
	}

	zap.L().Info("🎯 Пороги заказов загружены",
		zap.String("file", path),
		zap.Int("cargo", thresholds[models.PositionCargo]),
		zap.Int("express", thresholds[models.PositionExpress]))
	return thresholds, nil
}
