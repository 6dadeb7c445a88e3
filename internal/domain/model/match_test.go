package model_test

import (
	"errors"
	"fmt"
	"testing"

	model "github.com/okian/bastion/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseDifficulty(t *testing.T) {
	convey.Convey("Given difficulty labels", t, func() {
		convey.Convey("Then tier names and admin labels map to the same tiers", func() {
			cases := map[string]model.Difficulty{
				"easy":      model.DifficultyEasy,
				"beginner":  model.DifficultyEasy,
				"Medium":    model.DifficultyMedium,
				"hard":      model.DifficultyHard,
				"advanced":  model.DifficultyHard,
				" insane ":  model.DifficultyInsane,
				"expert":    model.DifficultyInsane,
			}
			for in, want := range cases {
				got, err := model.ParseDifficulty(in)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, want)
			}
		})

		convey.Convey("Then unknown labels are invalid input", func() {
			_, err := model.ParseDifficulty("nightmare")
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})
	})
}

func TestMatchValidate(t *testing.T) {
	convey.Convey("Given a match", t, func() {
		m := model.Match{ID: "m1", TeamSize: 2, TeamA: []string{"a1", "a2"}, TeamB: []string{"b1", "b2"}}

		convey.Convey("When both teams are full", func() {
			convey.Convey("Then it validates", func() {
				convey.So(m.Validate(), convey.ShouldBeNil)
				convey.So(m.Players(), convey.ShouldResemble, []string{"a1", "a2", "b1", "b2"})
			})
		})

		convey.Convey("When the teams are uneven", func() {
			m.TeamB = []string{"b1"}

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(m.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a player is on both teams", func() {
			m.TeamB = []string{"b1", "a2"}

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(m.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a player is listed twice on one team", func() {
			m.TeamA = []string{"a1", "a1"}

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(m.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a player id is blank", func() {
			m.TeamB = []string{"b1", " "}

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(m.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the team size is zero", func() {
			m.TeamSize = 0

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(m.Validate(), model.ErrInvalidInput), convey.ShouldBeTrue)
			})
		})
	})
}

func TestMatchResultStats(t *testing.T) {
	convey.Convey("Given a match result", t, func() {
		r := model.MatchResult{Players: []model.PlayerStats{{PlayerID: "p1", FlagsCaptured: 3}}}

		convey.So(r.Stats("p1").FlagsCaptured, convey.ShouldEqual, 3)
		convey.So(r.Stats("p2"), convey.ShouldResemble, model.PlayerStats{PlayerID: "p2"})
	})
}

func TestIsTransient(t *testing.T) {
	convey.Convey("Given engine errors", t, func() {
		convey.So(model.IsTransient(fmt.Errorf("poll: %w", model.ErrEngineTimeout)), convey.ShouldBeTrue)
		convey.So(model.IsTransient(model.ErrEngineUnavailable), convey.ShouldBeTrue)
		convey.So(model.IsTransient(model.ErrMatchNotFound), convey.ShouldBeFalse)
	})
}
