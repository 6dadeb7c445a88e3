package scoring

import "github.com/okian/bastion/internal/domain/model"

// pointTable maps difficulty to a small positive integer.
type pointTable map[model.Difficulty]int

func (t pointTable) get(d model.Difficulty) int {
	if v, ok := t[d]; ok {
		return v
	}
	return t[model.DifficultyEasy]
}

var (
	uptimePoints = pointTable{
		model.DifficultyEasy:   1,
		model.DifficultyMedium: 2,
		model.DifficultyHard:   3,
		model.DifficultyInsane: 4,
	}
	downtimePenalty = pointTable{
		model.DifficultyEasy:   1,
		model.DifficultyMedium: 2,
		model.DifficultyHard:   3,
		model.DifficultyInsane: 5,
	}
	flagPoints = pointTable{
		model.DifficultyEasy:   10,
		model.DifficultyMedium: 15,
		model.DifficultyHard:   20,
		model.DifficultyInsane: 25,
	}
)

// UptimePoints is awarded to the owner of a service reported UP for one tick.
func UptimePoints(d model.Difficulty) int { return uptimePoints.get(d) }

// DowntimePenalty is subtracted from the owner of a service reported DOWN.
func DowntimePenalty(d model.Difficulty) int { return downtimePenalty.get(d) }

// FlagPoints is awarded to the capturing team per validated flag.
func FlagPoints(d model.Difficulty) int { return flagPoints.get(d) }
