package core

// Species identifiers known to the default gestation table.
const (
	SpeciesSheep = "sheep"
	SpeciesGoat  = "goat"
)

// DefaultGestationDays is the sheep gestation length used when a cycle does
// not name a species with its own table entry.
const DefaultGestationDays = 155

// GestationTable maps species to gestation length in days.
type GestationTable map[string]int

// DefaultGestationTable returns the built-in species table.
func DefaultGestationTable() GestationTable {
	return GestationTable{
		SpeciesSheep: 155,
		SpeciesGoat:  150,
	}
}

// Days returns the gestation length for a species, falling back to the sheep
// default for unknown or empty species.
func (t GestationTable) Days(species string) int {
	if days, ok := t[species]; ok && days > 0 {
		return days
	}
	return DefaultGestationDays
}

// DueDate computes the planned due date as the start date plus the gestation
// length. Date arithmetic normalizes month and leap-year boundaries, so a
// start of 2024-02-20 with 150 days lands on 2024-07-19.
func DueDate(start Date, gestationDays int) Date {
	return start.AddDays(gestationDays)
}
