package matchsim

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

const (
	flagChance   = 0.15
	minUptime    = 0.55
	uptimeSpread = 0.4
)

// Plan is a fully generated match: its roster and everything sent during it.
type Plan struct {
	Match MatchRequest
	Ticks [][]HealthResult
	Flags map[int][]FlagCapture // by tick
}

// Generator builds reproducible match plans from a seed.
type Generator struct {
	rng     *rand.Rand
	players []string
}

// NewGenerator creates a generator over a pool of n players.
func NewGenerator(seed int64, n int) *Generator {
	players := make([]string, n)
	for i := range players {
		players[i] = fmt.Sprintf("player-%03d", i+1)
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), players: players}
}

// Players returns the pool.
func (g *Generator) Players() []string {
	return g.players
}

// Next draws a match of two teams of teamSize distinct players. Each side
// gets a random service reliability, which drives its uptime and flag share.
func (g *Generator) Next(difficulty string, teamSize, ticks int) Plan {
	id := uuid.NewString()
	picked := g.rng.Perm(len(g.players))[:2*teamSize]
	m := MatchRequest{
		MatchID:    id,
		Difficulty: difficulty,
		TeamSize:   teamSize,
	}
	for i, idx := range picked {
		if i < teamSize {
			m.TeamA = append(m.TeamA, g.players[idx])
		} else {
			m.TeamB = append(m.TeamB, g.players[idx])
		}
	}

	reliability := map[string]float64{
		"teamA": minUptime + g.rng.Float64()*uptimeSpread,
		"teamB": minUptime + g.rng.Float64()*uptimeSpread,
	}
	p := Plan{Match: m, Flags: make(map[int][]FlagCapture)}
	for tick := 1; tick <= ticks; tick++ {
		results := make([]HealthResult, 0, 2*teamSize)
		for _, team := range []string{"teamA", "teamB"} {
			for slot := 1; slot <= teamSize; slot++ {
				status := "DOWN"
				if g.rng.Float64() < reliability[team] {
					status = "UP"
				}
				results = append(results, HealthResult{
					ServiceID:      serviceID(team, id, slot),
					Status:         status,
					ResponseTimeMS: 5 + g.rng.Intn(200),
				})
			}
		}
		p.Ticks = append(p.Ticks, results)

		if g.rng.Float64() < flagChance {
			attacker, victim := "teamA", "teamB"
			if g.rng.Float64() >= reliability["teamA"]/(reliability["teamA"]+reliability["teamB"]) {
				attacker, victim = victim, attacker
			}
			p.Flags[tick] = append(p.Flags[tick], FlagCapture{
				TeamID:    attacker,
				ServiceID: serviceID(victim, id, 1+g.rng.Intn(teamSize)),
				Tick:      tick,
			})
		}
	}
	return p
}

func serviceID(team, matchID string, slot int) string {
	return fmt.Sprintf("%s_%s_%d", team, matchID, slot)
}
