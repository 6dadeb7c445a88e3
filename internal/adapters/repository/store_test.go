package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newSQLiteStore(t *testing.T) *SQLiteRatingStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ratings.db"), logger.Discard())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRatingStore(db, WithLogger(logger.Discard()), WithClock(newClock().now))
}

// ratingStores runs fn against every RatingStore implementation.
func ratingStores(t *testing.T, fn func(t *testing.T, s RatingStore)) {
	t.Run("memory", func(t *testing.T) {
		s := NewMemoryRatingStore()
		s.now = newClock().now
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteStore(t))
	})
}

func seed(id string) model.PlayerRating {
	return model.PlayerRating{PlayerID: id, MMR: model.DefaultMMR, Rank: "Packet Sniffer"}
}

func add(matchID string, delta float64) Mutation {
	return func(cur model.PlayerRating) (model.PlayerRating, model.RatingChange, error) {
		cur.MMR += delta
		cur.RP += 15
		return cur, model.RatingChange{MatchID: matchID, Delta: delta, MMR: cur.MMR, Rank: cur.Rank, RP: cur.RP}, nil
	}
}

func TestRatingStore_GetUnknown(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		_, err := s.Get(context.Background(), "nobody")
		if !errors.Is(err, model.ErrPlayerNotFound) {
			t.Fatalf("expected ErrPlayerNotFound, got %v", err)
		}
		if n := s.Count(context.Background()); n != 0 {
			t.Errorf("expected count 0, got %d", n)
		}
	})
}

func TestRatingStore_UpdateSeedsAndPersists(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()

		got, err := s.Update(ctx, "p1", seed("p1"), add("m1", 15))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.MMR != 1015 || got.RP != 15 || got.Rank != "Packet Sniffer" {
			t.Errorf("unexpected rating %+v", got)
		}

		stored, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stored.MMR != 1015 || stored.RP != 15 || stored.PlayerID != "p1" {
			t.Errorf("unexpected stored rating %+v", stored)
		}
		if stored.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be set")
		}

		// the seed is ignored once a rating exists
		got, err = s.Update(ctx, "p1", seed("p1"), add("m2", -5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.MMR != 1010 || got.RP != 30 {
			t.Errorf("unexpected rating after second update %+v", got)
		}
	})
}

func TestRatingStore_AtMostOncePerMatch(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()
		if _, err := s.Update(ctx, "p1", seed("p1"), add("m1", 10)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := s.Update(ctx, "p1", seed("p1"), add("m1", 10))
		if !errors.Is(err, model.ErrAlreadySettled) {
			t.Fatalf("expected ErrAlreadySettled, got %v", err)
		}
		r, _ := s.Get(ctx, "p1")
		if r.MMR != 1010 {
			t.Errorf("duplicate settlement changed mmr to %v", r.MMR)
		}
	})
}

func TestRatingStore_MutationErrorAborts(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()
		boom := errors.New("boom")
		_, err := s.Update(ctx, "p1", seed("p1"), func(model.PlayerRating) (model.PlayerRating, model.RatingChange, error) {
			return model.PlayerRating{}, model.RatingChange{}, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected mutation error, got %v", err)
		}
		if _, err := s.Get(ctx, "p1"); !errors.Is(err, model.ErrPlayerNotFound) {
			t.Errorf("aborted update must not persist, got %v", err)
		}
	})
}

func TestRatingStore_History(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			if _, err := s.Update(ctx, "p1", seed("p1"), add(fmt.Sprintf("m%d", i), float64(i))); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		all, err := s.History(ctx, "p1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 changes, got %d", len(all))
		}
		if all[0].MatchID != "m3" || all[2].MatchID != "m1" {
			t.Errorf("expected newest first, got %s..%s", all[0].MatchID, all[2].MatchID)
		}
		if all[0].ID == "" || all[0].PlayerID != "p1" {
			t.Errorf("expected id and player on change, got %+v", all[0])
		}

		two, _ := s.History(ctx, "p1", 2)
		if len(two) != 2 {
			t.Errorf("expected 2 changes, got %d", len(two))
		}

		none, err := s.History(ctx, "unknown", 5)
		if err != nil || len(none) != 0 {
			t.Errorf("expected empty history, got %v, %v", none, err)
		}
	})
}

func TestRatingStore_TopN(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()
		deltas := map[string]float64{"p1": 50, "p2": 10, "p3": 50, "p4": -20}
		for id, d := range deltas {
			if _, err := s.Update(ctx, id, seed(id), add("m1", d)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		// p2 overtakes everyone
		if _, err := s.Update(ctx, "p2", seed("p2"), add("m2", 100)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		top, err := s.TopN(ctx, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"p2", "p1", "p3"}
		if len(top) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(top))
		}
		for i, id := range want {
			if top[i].PlayerID != id || top[i].Position != i+1 {
				t.Errorf("position %d: expected %s, got %+v", i+1, id, top[i])
			}
		}
		if top[0].MMR != 1110 {
			t.Errorf("expected leader mmr 1110, got %v", top[0].MMR)
		}
		if n := s.Count(ctx); n != 4 {
			t.Errorf("expected count 4, got %d", n)
		}

		all, _ := s.TopN(ctx, 100)
		if len(all) != 4 || all[3].PlayerID != "p4" {
			t.Errorf("expected p4 last of 4, got %+v", all)
		}

		if _, err := s.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	})
}

func TestRatingStore_ConcurrentUpdatesSamePlayer(t *testing.T) {
	ratingStores(t, func(t *testing.T, s RatingStore) {
		ctx := context.Background()
		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.Update(ctx, "p1", seed("p1"), add(fmt.Sprintf("m%d", i), 1)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("unexpected error: %v", err)
		}

		r, err := s.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.MMR != model.DefaultMMR+writers {
			t.Errorf("lost update: expected mmr %v, got %v", model.DefaultMMR+writers, r.MMR)
		}
	})
}

func TestMemoryMatchStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMatchStore()
	m := model.Match{ID: "m1", Difficulty: model.DifficultyHard, TeamSize: 1, TeamA: []string{"a"}, TeamB: []string{"b"}}

	if err := s.Put(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Put(ctx, m); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.TeamA[0] = "mutated"
	again, _ := s.Get(ctx, "m1")
	if again.TeamA[0] != "a" {
		t.Error("Get must return a copy")
	}

	if _, err := s.AdvanceStatus(ctx, "m1", model.StatusRunning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.AdvanceStatus(ctx, "m1", model.StatusRunning); err != nil {
		t.Errorf("advancing to the same status should be a no-op, got %v", err)
	}
	if _, err := s.AdvanceStatus(ctx, "m1", model.StatusStarting); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	inv, err := s.MarkInvalid(ctx, "m1")
	if err != nil || !inv.Invalid {
		t.Errorf("expected invalid match, got %+v, %v", inv, err)
	}
	if _, err := s.AdvanceStatus(ctx, "m1", model.StatusEnded); !errors.Is(err, model.ErrMatchInvalid) {
		t.Errorf("expected ErrMatchInvalid, got %v", err)
	}
	if again, _ := s.Get(ctx, "m1"); again.Status != model.StatusRunning {
		t.Errorf("invalid match must keep its status, got %s", again.Status)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, model.ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
	if _, err := s.AdvanceStatus(ctx, "missing", model.StatusEnded); !errors.Is(err, model.ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
	if _, err := s.MarkInvalid(ctx, "missing"); !errors.Is(err, model.ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestLadderOrdering(t *testing.T) {
	var l ladder
	l.insert(Entry{PlayerID: "b", MMR: 1000})
	l.insert(Entry{PlayerID: "a", MMR: 1000})
	l.insert(Entry{PlayerID: "c", MMR: 1200})
	l.remove(1000, "b")
	l.remove(999, "a") // wrong key is ignored

	top := l.top(10)
	if len(top) != 2 || top[0].PlayerID != "c" || top[1].PlayerID != "a" {
		t.Fatalf("unexpected ladder %+v", top)
	}
}
