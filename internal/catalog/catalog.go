// Package catalog holds the static nation table. Definitions are
// immutable for the process lifetime.
package catalog

// Nation defines a playable nation's economic and military profile.
type Nation struct {
	ID          string
	Name        string
	Emoji       string
	BaseIncome  float64 // passive income per second
	ArmyCost    float64 // base cost of an army upgrade
	CityCost    float64 // base cost of a city upgrade
	TaxModifier float64 // multiplier on the base tax rate
}

const (
	defaultArmyCost = 1000
	defaultCityCost = 5000
)

var nations = map[string]Nation{
	"russia":  {ID: "russia", Name: "Россия", Emoji: "🇷🇺", BaseIncome: 10.0, ArmyCost: defaultArmyCost, CityCost: defaultCityCost, TaxModifier: 1.1},
	"ukraine": {ID: "ukraine", Name: "Украина", Emoji: "🇺🇦", BaseIncome: 8.0, ArmyCost: defaultArmyCost, CityCost: defaultCityCost, TaxModifier: 0.9},
	"turkey":  {ID: "turkey", Name: "Турция", Emoji: "🇹🇷", BaseIncome: 7.0, ArmyCost: 900, CityCost: defaultCityCost, TaxModifier: 1.0},
	"sweden":  {ID: "sweden", Name: "Швеция", Emoji: "🇸🇪", BaseIncome: 6.0, ArmyCost: 1100, CityCost: defaultCityCost, TaxModifier: 0.8},
	"finland": {ID: "finland", Name: "Финляндия", Emoji: "🇫🇮", BaseIncome: 5.0, ArmyCost: defaultArmyCost, CityCost: defaultCityCost, TaxModifier: 0.7},
	"spain":   {ID: "spain", Name: "Испания", Emoji: "🇪🇸", BaseIncome: 9.0, ArmyCost: defaultArmyCost, CityCost: defaultCityCost, TaxModifier: 1.2},
}

// order fixes the iteration order for keyboards and listings.
var order = []string{"russia", "ukraine", "turkey", "sweden", "finland", "spain"}

// Get returns the nation definition for an id.
func Get(id string) (Nation, bool) {
	n, ok := nations[id]
	return n, ok
}

// MustGet returns the nation definition, falling back to a zero-value
// nation for unknown ids. Callers that validated the id use this.
func MustGet(id string) Nation {
	return nations[id]
}

// Exists reports whether the id names a known nation.
func Exists(id string) bool {
	_, ok := nations[id]
	return ok
}

// All returns every nation in stable display order.
func All() []Nation {
	out := make([]Nation, 0, len(order))
	for _, id := range order {
		out = append(out, nations[id])
	}
	return out
}

// ArmyUpgradeCost is the price of the next army level.
func ArmyUpgradeCost(n Nation, currentLevel int) float64 {
	return n.ArmyCost * float64(currentLevel)
}

// CityUpgradeCost is the price of the next city level.
func CityUpgradeCost(n Nation, currentLevel int) float64 {
	return n.CityCost * float64(currentLevel)
}
