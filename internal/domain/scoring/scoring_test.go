package scoring_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/okian/bastion/internal/domain/model"
	scoring "github.com/okian/bastion/internal/domain/scoring"
	"github.com/okian/bastion/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func newModel() *scoring.Model {
	return scoring.NewModel(scoring.WithLogger(logger.Discard()))
}

func up(id string) model.HealthResult   { return model.HealthResult{ServiceID: id, Status: model.StatusUp} }
func down(id string) model.HealthResult { return model.HealthResult{ServiceID: id, Status: model.StatusDown} }

func TestRecordTick(t *testing.T) {
	ctx := context.Background()

	Convey("Given a medium difficulty match", t, func() {
		m := newModel()
		So(m.Begin("m1", model.DifficultyMedium), ShouldBeTrue)

		Convey("When a teamA service is reported DOWN", func() {
			ok := m.RecordTick(ctx, "m1", []model.HealthResult{{ServiceID: "teamA_m1_1", Status: model.StatusDown, ResponseTimeMS: 0}})

			Convey("Then teamA loses the medium downtime penalty and teamB is unaffected", func() {
				So(ok, ShouldBeTrue)
				scores, found := m.GetScores("m1")
				So(found, ShouldBeTrue)
				So(scores.TeamA, ShouldEqual, -scoring.DowntimePenalty(model.DifficultyMedium))
				So(scores.TeamB, ShouldEqual, 0)
			})
		})

		Convey("When both teams have services up", func() {
			m.RecordTick(ctx, "m1", []model.HealthResult{up("teamA_m1_1"), up("teamA_m1_2"), up("teamB_m1_1")})

			Convey("Then each UP service earns its owner uptime points", func() {
				scores, _ := m.GetScores("m1")
				So(scores.TeamA, ShouldEqual, 2*scoring.UptimePoints(model.DifficultyMedium))
				So(scores.TeamB, ShouldEqual, scoring.UptimePoints(model.DifficultyMedium))
			})
		})

		Convey("When a service id has an unknown owner prefix", func() {
			ok := m.RecordTick(ctx, "m1", []model.HealthResult{down("teamC_m1_1"), up("checker_m1_1")})

			Convey("Then nothing is scored but the tick still counts", func() {
				So(ok, ShouldBeTrue)
				scores, _ := m.GetScores("m1")
				So(scores, ShouldResemble, model.Scores{})
				tick, _ := m.Tick("m1")
				So(tick, ShouldEqual, 1)
			})
		})

		Convey("When health flips across ticks", func() {
			m.RecordTick(ctx, "m1", []model.HealthResult{up("teamB_m1_2")})
			m.RecordTick(ctx, "m1", []model.HealthResult{up("teamB_m1_2")})
			m.RecordTick(ctx, "m1", []model.HealthResult{down("teamB_m1_2")})

			Convey("Then consecutive counters reset and totals accumulate", func() {
				health, ok := m.ServiceHealth("m1")
				So(ok, ShouldBeTrue)
				So(health, ShouldHaveLength, 1)
				So(health[0], ShouldResemble, model.ServiceHealth{
					ServiceID:       "teamB_m1_2",
					LastStatus:      model.StatusDown,
					ConsecutiveUp:   0,
					ConsecutiveDown: 1,
					TotalUp:         2,
					TotalDown:       1,
				})
				tick, _ := m.Tick("m1")
				So(tick, ShouldEqual, 3)
			})
		})

		Convey("When downtime outweighs uptime", func() {
			for i := 0; i < 5; i++ {
				m.RecordTick(ctx, "m1", []model.HealthResult{down("teamB_m1_1")})
			}

			Convey("Then scores go negative without a floor", func() {
				scores, _ := m.GetScores("m1")
				So(scores.TeamB, ShouldEqual, -5*scoring.DowntimePenalty(model.DifficultyMedium))
			})
		})
	})

	Convey("Given no registered match", t, func() {
		m := newModel()

		Convey("When a tick arrives", func() {
			ok := m.RecordTick(ctx, "gone", []model.HealthResult{up("teamA_gone_1")})

			Convey("Then it is a silent no-op", func() {
				So(ok, ShouldBeFalse)
				_, found := m.GetScores("gone")
				So(found, ShouldBeFalse)
			})
		})
	})

	Convey("Given a match that was torn down", t, func() {
		m := newModel()
		m.Begin("m9", model.DifficultyHard)
		m.RecordTick(ctx, "m9", []model.HealthResult{up("teamA_m9_1")})
		So(m.End("m9"), ShouldBeTrue)

		Convey("Then late ticks and captures are ignored", func() {
			So(m.RecordTick(ctx, "m9", []model.HealthResult{up("teamA_m9_1")}), ShouldBeFalse)
			So(m.OnFlagCaptured(ctx, "m9", model.TeamA, "teamB_m9_1", 3), ShouldBeFalse)
			So(m.End("m9"), ShouldBeFalse)
			So(m.Len(), ShouldEqual, 0)
		})
	})
}

func TestFreeze(t *testing.T) {
	ctx := context.Background()

	Convey("Given a medium match with one scored tick", t, func() {
		m := newModel()
		m.Begin("m4", model.DifficultyMedium)
		m.RecordTick(ctx, "m4", []model.HealthResult{up("teamA_m4_1")})

		Convey("When it is frozen", func() {
			So(m.Freeze("m4"), ShouldBeTrue)

			Convey("Then ticks and captures no longer move the totals", func() {
				So(m.RecordTick(ctx, "m4", []model.HealthResult{up("teamB_m4_1"), up("teamB_m4_2")}), ShouldBeFalse)
				So(m.OnFlagCaptured(ctx, "m4", model.TeamB, "teamA_m4_1", 2), ShouldBeFalse)
				scores, ok := m.GetScores("m4")
				So(ok, ShouldBeTrue)
				So(scores, ShouldResemble, model.Scores{TeamA: scoring.UptimePoints(model.DifficultyMedium)})
				tick, _ := m.Tick("m4")
				So(tick, ShouldEqual, 1)
			})

			Convey("Then freezing again or after End reports false", func() {
				So(m.Freeze("m4"), ShouldBeFalse)
				So(m.End("m4"), ShouldBeTrue)
				So(m.Freeze("m4"), ShouldBeFalse)
			})
		})

		Convey("Then an unknown match cannot be frozen", func() {
			So(m.Freeze("nope"), ShouldBeFalse)
		})
	})
}

func TestOnFlagCaptured(t *testing.T) {
	ctx := context.Background()

	Convey("Given an insane match", t, func() {
		m := newModel()
		m.Begin("m2", model.DifficultyInsane)

		Convey("When teamB captures a flag", func() {
			So(m.OnFlagCaptured(ctx, "m2", model.TeamB, "teamA_m2_1", 4), ShouldBeTrue)

			Convey("Then teamB is awarded flag points immediately", func() {
				scores, _ := m.GetScores("m2")
				So(scores.TeamB, ShouldEqual, scoring.FlagPoints(model.DifficultyInsane))
				So(scores.TeamA, ShouldEqual, 0)
			})
		})

		Convey("When the team id is not teamA or teamB", func() {
			Convey("Then the capture is ignored", func() {
				So(m.OnFlagCaptured(ctx, "m2", "teama", "teamA_m2_1", 4), ShouldBeFalse)
				So(m.OnFlagCaptured(ctx, "m2", "", "teamA_m2_1", 4), ShouldBeFalse)
				scores, _ := m.GetScores("m2")
				So(scores, ShouldResemble, model.Scores{})
			})
		})
	})
}

func TestPointTables(t *testing.T) {
	Convey("Given the point tables", t, func() {
		Convey("Then an unknown difficulty uses the lowest tier", func() {
			d := model.Difficulty("unknown")
			So(scoring.UptimePoints(d), ShouldEqual, scoring.UptimePoints(model.DifficultyEasy))
			So(scoring.DowntimePenalty(d), ShouldEqual, scoring.DowntimePenalty(model.DifficultyEasy))
			So(scoring.FlagPoints(d), ShouldEqual, scoring.FlagPoints(model.DifficultyEasy))
		})

		Convey("Then every value is a small positive integer", func() {
			for _, d := range []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard, model.DifficultyInsane} {
				So(scoring.UptimePoints(d), ShouldBeBetweenOrEqual, 1, 100)
				So(scoring.DowntimePenalty(d), ShouldBeBetweenOrEqual, 1, 100)
				So(scoring.FlagPoints(d), ShouldBeBetweenOrEqual, 1, 100)
			}
		})
	})
}

type step struct {
	results []model.HealthResult
	flag    string
}

func randomSteps(seed int64, matchID string, n int) []step {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test input
	steps := make([]step, n)
	for i := range steps {
		if rng.Intn(5) == 0 {
			steps[i].flag = []string{model.TeamA, model.TeamB}[rng.Intn(2)]
			continue
		}
		for s := 1; s <= 3; s++ {
			for _, team := range []string{model.TeamA, model.TeamB} {
				status := model.StatusUp
				if rng.Intn(3) == 0 {
					status = model.StatusDown
				}
				steps[i].results = append(steps[i].results, model.HealthResult{
					ServiceID: fmt.Sprintf("%s_%s_%d", team, matchID, s),
					Status:    status,
				})
			}
		}
	}
	return steps
}

func expectedScores(d model.Difficulty, steps []step) model.Scores {
	var s model.Scores
	add := func(team string, v int) {
		if team == model.TeamA {
			s.TeamA += v
		} else {
			s.TeamB += v
		}
	}
	for _, st := range steps {
		if st.flag != "" {
			add(st.flag, scoring.FlagPoints(d))
			continue
		}
		for _, r := range st.results {
			team := model.TeamA
			if r.ServiceID[:5] == model.TeamB {
				team = model.TeamB
			}
			if r.Status == model.StatusUp {
				add(team, scoring.UptimePoints(d))
			} else {
				add(team, -scoring.DowntimePenalty(d))
			}
		}
	}
	return s
}

func TestScoringDeterminism(t *testing.T) {
	ctx := context.Background()

	Convey("Given random tick sequences for every difficulty", t, func() {
		difficulties := []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard, model.DifficultyInsane}

		Convey("When matches are replayed concurrently", func() {
			m := newModel()
			var wg sync.WaitGroup
			for i, d := range difficulties {
				matchID := fmt.Sprintf("det-%d", i)
				m.Begin(matchID, d)
				wg.Add(1)
				go func(matchID string, seed int64) {
					defer wg.Done()
					for _, st := range randomSteps(seed, matchID, 200) {
						if st.flag != "" {
							m.OnFlagCaptured(ctx, matchID, st.flag, "", 0)
							continue
						}
						m.RecordTick(ctx, matchID, st.results)
					}
				}(matchID, int64(i+1))
			}
			wg.Wait()

			Convey("Then each total equals the sum of per-step contributions", func() {
				for i, d := range difficulties {
					matchID := fmt.Sprintf("det-%d", i)
					got, ok := m.GetScores(matchID)
					So(ok, ShouldBeTrue)
					So(got, ShouldResemble, expectedScores(d, randomSteps(int64(i+1), matchID, 200)))
				}
			})
		})

		Convey("When concurrent writers hit the same match", func() {
			m := newModel()
			m.Begin("shared", model.DifficultyHard)
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						m.RecordTick(ctx, "shared", []model.HealthResult{up("teamA_shared_1")})
						m.OnFlagCaptured(ctx, "shared", model.TeamB, "teamA_shared_1", i)
					}
				}()
			}
			wg.Wait()

			Convey("Then no update is lost", func() {
				scores, _ := m.GetScores("shared")
				So(scores.TeamA, ShouldEqual, 800*scoring.UptimePoints(model.DifficultyHard))
				So(scores.TeamB, ShouldEqual, 800*scoring.FlagPoints(model.DifficultyHard))
				tick, _ := m.Tick("shared")
				So(tick, ShouldEqual, 800)
			})
		})
	})
}
