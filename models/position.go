package models

import "fmt"

// Category: категория, выбранная кандидатом при подключении
type Category string

const (
	CategoryTruckDriver Category = "truck_driver"
	CategoryCarCourier  Category = "car_courier"
	CategoryFootCourier Category = "foot_courier"
)

// Categories в порядке показа на клавиатуре
var Categories = []Category{CategoryTruckDriver, CategoryCarCourier, CategoryFootCourier}

// ParseCategory проверяет значение из callback data
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Title: подпись категории для сообщений
func (c Category) Title() string {
	switch c {
	case CategoryTruckDriver:
		return "🚛 Водитель грузового авто"
	case CategoryCarCourier:
		return "🚗 Курьер на авто"
	case CategoryFootCourier:
		return "🚶 Пеший курьер"
	}
	return "📌 " + string(c)
}

// Position: тип работы водителя по данным парка, определяет порог заказов
type Position string

const (
	PositionUnknown Position = ""
	PositionCargo   Position = "cargo"
	PositionExpress Position = "express"
)

// Known сообщает, определена ли позиция
func (p Position) Known() bool {
	return p == PositionCargo || p == PositionExpress
}

// Ptr возвращает nil для неизвестной позиции
func (p Position) Ptr() *Position {
	if !p.Known() {
		return nil
	}
	return &p
}

// Title: подпись позиции для сообщений
func (p Position) Title() string {
	switch p {
	case PositionCargo:
		return "грузовой"
	case PositionExpress:
		return "экспресс"
	}
	return "не определена"
}

// Position переводит выбранную категорию в позицию
func (c Category) Position() Position {
	if c == CategoryTruckDriver {
		return PositionCargo
	}
	return PositionExpress
}

// Thresholds: сколько выполненных заказов нужно для бонуса по каждой позиции
type Thresholds map[Position]int

// DefaultThresholds: 30 заказов для грузового, 45 для экспресса
func DefaultThresholds() Thresholds {
	return Thresholds{
		PositionCargo:   30,
		PositionExpress: 45,
	}
}

// For возвращает порог позиции; ok=false для неизвестной позиции
func (t Thresholds) For(p Position) (int, bool) {
	v, ok := t[p]
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// Reached сообщает, достигнут ли порог
func (t Thresholds) Reached(p Position, orders int) bool {
	v, ok := t.For(p)
	return ok && orders >= v
}
