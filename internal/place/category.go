package place

import "strings"

// CategoryClass groups free-form categories into the classes that scoring
// treats differently.
type CategoryClass int

const (
	ClassGeneral CategoryClass = iota
	ClassAttraction
	ClassDining
)

func (c CategoryClass) String() string {
	switch c {
	case ClassAttraction:
		return "attraction"
	case ClassDining:
		return "dining"
	default:
		return "general"
	}
}

// Tuning holds the per-class scoring multipliers.
type Tuning struct {
	// EfficiencyFactor scales the expected stay/travel ratio.
	// Below 1 tolerates longer travel.
	EfficiencyFactor float64

	// DistanceFactor scales the distance at which the distance score reaches zero.
	DistanceFactor float64
}

var tunings = map[CategoryClass]Tuning{
	ClassGeneral:    {EfficiencyFactor: 1.0, DistanceFactor: 1.0},
	ClassAttraction: {EfficiencyFactor: 0.8, DistanceFactor: 1.2},
	ClassDining:     {EfficiencyFactor: 1.2, DistanceFactor: 0.8},
}

// Tuning returns the multipliers for the class. Unknown classes tune as general.
func (c CategoryClass) Tuning() Tuning {
	if t, ok := tunings[c]; ok {
		return t
	}
	return tunings[ClassGeneral]
}

var categoryClasses = map[string]CategoryClass{
	"景點":                 ClassAttraction,
	"主要景點":               ClassAttraction,
	"旅遊景點":               ClassAttraction,
	"attraction":         ClassAttraction,
	"tourist_attraction": ClassAttraction,
	"landmark":           ClassAttraction,
	"museum":             ClassAttraction,
	"park":               ClassAttraction,

	"餐廳":         ClassDining,
	"小吃":         ClassDining,
	"中菜館":        ClassDining,
	"壽司店":        ClassDining,
	"快餐店":        ClassDining,
	"麵店":         ClassDining,
	"restaurant": ClassDining,
	"food":       ClassDining,
	"fast_food":  ClassDining,
	"cafe":       ClassDining,
}

// Classify maps a category label to its class, case-insensitively.
func Classify(category string) CategoryClass {
	if c, ok := categoryClasses[strings.ToLower(strings.TrimSpace(category))]; ok {
		return c
	}
	return ClassGeneral
}
