package rating

import "sort"

// Tier is a named rank unlocked at a minimum MMR.
type Tier struct {
	Name   string  `koanf:"name"`
	MinMMR float64 `koanf:"min_mmr"`
}

// DefaultTiers is the ladder used when no table is configured.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Script Kiddie", MinMMR: 0},
		{Name: "Initiate", MinMMR: 800},
		{Name: "Packet Sniffer", MinMMR: 1000},
		{Name: "Exploit Crafter", MinMMR: 1200},
		{Name: "Red Teamer", MinMMR: 1400},
		{Name: "Zero Day", MinMMR: 1600},
		{Name: "Ghost", MinMMR: 1800},
	}
}

// tierTable is an ascending, immutable copy of a tier list.
type tierTable []Tier

func newTierTable(tiers []Tier) tierTable {
	t := make(tierTable, len(tiers))
	copy(t, tiers)
	// Stable keeps configured order for equal minimums so the later entry still wins.
	sort.SliceStable(t, func(i, j int) bool { return t[i].MinMMR < t[j].MinMMR })
	return t
}

// indexOf returns the position of the highest tier whose minimum is <= mmr.
// Values below every minimum land on the lowest tier.
func (t tierTable) indexOf(mmr float64) int {
	idx := 0
	for i, tier := range t {
		if tier.MinMMR <= mmr {
			idx = i
		}
	}
	return idx
}

// indexByName returns the position of a named tier, or -1.
func (t tierTable) indexByName(name string) int {
	for i, tier := range t {
		if tier.Name == name {
			return i
		}
	}
	return -1
}
