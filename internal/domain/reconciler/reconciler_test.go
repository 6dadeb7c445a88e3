package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type notification struct {
	matchID string
	state   string
}

type recordingPublisher struct {
	mu      sync.Mutex
	sent    []notification
	block   chan struct{}
	entered chan struct{}
}

func (p *recordingPublisher) Publish(_ context.Context, matchID, state string) error {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, notification{matchID: matchID, state: state})
	return nil
}

func (p *recordingPublisher) all() []notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification(nil), p.sent...)
}

type scriptedSource struct {
	mu     sync.Mutex
	states []string
	err    error
	calls  int
}

func (s *scriptedSource) GetMatchStatus(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.states) == 0 {
		return "RUNNING", nil
	}
	st := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return st, nil
}

func (s *scriptedSource) set(states []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = states
	s.err = err
}

func newTestReconciler(src StatusSource, pub Publisher, opts ...Option) *Reconciler {
	opts = append([]Option{WithLogger(logger.Discard()), WithInterval(time.Hour)}, opts...)
	return New(src, pub, opts...)
}

func trackerOf(r *Reconciler, matchID string) *tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[matchID]
}

func TestMapEngineState(t *testing.T) {
	Convey("Given engine states", t, func() {
		Convey("Then known states map onto the three phases", func() {
			cases := map[string]Phase{
				"CREATED":      PhaseInitializing,
				"INITIALIZING": PhaseInitializing,
				"RUNNING":      PhaseRunning,
				"ENDING":       PhaseEnded,
				"ENDED":        PhaseEnded,
			}
			for state, want := range cases {
				got, ok := MapEngineState(state)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then unknown states carry no signal", func() {
			for _, state := range []string{"", "running", "PAUSED", "FAILED"} {
				_, ok := MapEngineState(state)
				So(ok, ShouldBeFalse)
			}
		})
	})
}

func TestStartTracking(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reconciler", t, func() {
		src := &scriptedSource{}
		pub := &recordingPublisher{}
		r := newTestReconciler(src, pub)
		defer r.Close()

		Convey("When a match is tracked with an initial phase and polled RUNNING twice", func() {
			So(r.StartTracking(ctx, "m2", PhaseInitializing), ShouldBeTrue)
			tr := trackerOf(r, "m2")
			src.set([]string{"RUNNING"}, nil)

			So(r.poll(ctx, "m2", tr), ShouldBeFalse)
			So(r.poll(ctx, "m2", tr), ShouldBeFalse)

			Convey("Then exactly one running broadcast follows the initial one", func() {
				So(pub.all(), ShouldResemble, []notification{
					{matchID: "m2", state: "initializing"},
					{matchID: "m2", state: "running"},
				})
				phase, ok := r.Phase("m2")
				So(ok, ShouldBeTrue)
				So(phase, ShouldEqual, PhaseRunning)
			})
		})

		Convey("When tracking starts twice", func() {
			first := r.StartTracking(ctx, "m3", PhaseInitializing)
			second := r.StartTracking(ctx, "m3", PhaseInitializing)

			Convey("Then only one tracker exists and the initial phase is sent once", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(r.Len(), ShouldEqual, 1)
				So(pub.all(), ShouldHaveLength, 1)
			})
		})

		Convey("When no initial phase is given", func() {
			r.StartTracking(ctx, "m4", "")

			Convey("Then nothing is broadcast until a poll succeeds", func() {
				So(pub.all(), ShouldBeEmpty)
				So(r.poll(ctx, "m4", trackerOf(r, "m4")), ShouldBeFalse)
				So(pub.all(), ShouldResemble, []notification{{matchID: "m4", state: "running"}})
			})
		})

		Convey("When the engine reports an unrecognized state", func() {
			r.StartTracking(ctx, "m5", PhaseInitializing)
			src.set([]string{"PAUSED"}, nil)

			Convey("Then it is ignored", func() {
				So(r.poll(ctx, "m5", trackerOf(r, "m5")), ShouldBeFalse)
				So(pub.all(), ShouldHaveLength, 1)
				So(r.Tracked("m5"), ShouldBeTrue)
			})
		})

		Convey("When the engine is unavailable", func() {
			r.StartTracking(ctx, "m6", PhaseInitializing)
			tr := trackerOf(r, "m6")
			src.set(nil, model.ErrEngineUnavailable)

			Convey("Then the loop keeps going and recovers on the next success", func() {
				So(r.poll(ctx, "m6", tr), ShouldBeFalse)
				So(r.poll(ctx, "m6", tr), ShouldBeFalse)
				So(r.Tracked("m6"), ShouldBeTrue)
				So(pub.all(), ShouldHaveLength, 1)

				src.set([]string{"RUNNING"}, nil)
				So(r.poll(ctx, "m6", tr), ShouldBeFalse)
				So(pub.all(), ShouldHaveLength, 2)
			})
		})

		Convey("When the engine reports ENDED", func() {
			r.StartTracking(ctx, "m7", PhaseRunning)
			tr := trackerOf(r, "m7")
			src.set([]string{"ENDED"}, nil)

			Convey("Then ended is broadcast and tracking stops", func() {
				So(r.poll(ctx, "m7", tr), ShouldBeTrue)
				So(pub.all(), ShouldResemble, []notification{
					{matchID: "m7", state: "running"},
					{matchID: "m7", state: "ended"},
				})
				So(r.Tracked("m7"), ShouldBeFalse)
				So(r.poll(ctx, "m7", tr), ShouldBeTrue)
				So(pub.all(), ShouldHaveLength, 2)
			})
		})
	})
}

func TestStopTracking(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracked match", t, func() {
		src := &scriptedSource{}
		pub := &recordingPublisher{}
		r := newTestReconciler(src, pub)
		defer r.Close()
		r.StartTracking(ctx, "m1", PhaseInitializing)
		tr := trackerOf(r, "m1")

		Convey("When tracking is stopped", func() {
			So(r.StopTracking("m1"), ShouldBeTrue)

			Convey("Then a late poll cannot broadcast", func() {
				So(r.poll(ctx, "m1", tr), ShouldBeTrue)
				So(pub.all(), ShouldHaveLength, 1)
				So(r.Tracked("m1"), ShouldBeFalse)
			})

			Convey("Then stopping again is a no-op", func() {
				So(r.StopTracking("m1"), ShouldBeFalse)
			})

			Convey("Then the id can be tracked again without the stale loop interfering", func() {
				So(r.StartTracking(ctx, "m1", PhaseInitializing), ShouldBeTrue)
				r.forget("m1", tr)
				So(r.Tracked("m1"), ShouldBeTrue)
			})
		})

		Convey("When a stop races an in-flight broadcast", func() {
			pub.block = make(chan struct{})
			pub.entered = make(chan struct{}, 1)
			polled := make(chan struct{})
			go func() {
				r.poll(ctx, "m1", tr)
				close(polled)
			}()
			<-pub.entered

			stopped := make(chan struct{})
			go func() {
				r.StopTracking("m1")
				close(stopped)
			}()

			Convey("Then the stop waits for the broadcast and nothing follows it", func() {
				select {
				case <-stopped:
					t.Fatal("stop returned while a broadcast was in flight")
				case <-time.After(20 * time.Millisecond):
				}
				close(pub.block)
				<-stopped
				<-polled
				count := len(pub.all())
				So(r.poll(ctx, "m1", tr), ShouldBeTrue)
				So(pub.all(), ShouldHaveLength, count)
			})
		})
	})
}

func TestPollLoop(t *testing.T) {
	Convey("Given a fast poll interval and a phase hook", t, func() {
		src := &scriptedSource{states: []string{"INITIALIZING", "RUNNING", "RUNNING", "ENDED"}}
		pub := &recordingPublisher{}
		ended := make(chan string, 1)
		hook := func(_ context.Context, matchID string, phase Phase) {
			if phase == PhaseEnded {
				ended <- matchID
			}
		}
		r := New(src, pub,
			WithLogger(logger.Discard()),
			WithInterval(5*time.Millisecond),
			WithPhaseHook(hook))
		defer r.Close()

		Convey("When the engine walks the match to completion", func() {
			r.StartTracking(context.Background(), "loop", PhaseInitializing)

			Convey("Then every transition is broadcast once and the hook sees the end", func() {
				select {
				case id := <-ended:
					So(id, ShouldEqual, "loop")
				case <-time.After(2 * time.Second):
					t.Fatal("match never ended")
				}
				So(pub.all(), ShouldResemble, []notification{
					{matchID: "loop", state: "initializing"},
					{matchID: "loop", state: "running"},
					{matchID: "loop", state: "ended"},
				})
				So(r.Tracked("loop"), ShouldBeFalse)
			})
		})

		Convey("When the caller's context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			src.set(nil, errors.New("boom"))
			r.StartTracking(ctx, "detached", PhaseInitializing)
			cancel()

			Convey("Then the loop keeps running", func() {
				time.Sleep(20 * time.Millisecond)
				So(r.Tracked("detached"), ShouldBeTrue)
			})
		})
	})
}
