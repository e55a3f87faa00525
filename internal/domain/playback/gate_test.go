package playback_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pairwise/internal/domain/playback"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGateTransitions(t *testing.T) {
	Convey("Given a gate over two streams", t, func() {
		g := playback.NewGate(2)
		defer g.Stop()

		Convey("Then it starts in Playing and rejects responses", func() {
			So(g.State(), ShouldEqual, playback.Playing)
			So(g.Respond(), ShouldEqual, playback.ErrNotReady)
		})

		Convey("When only one stream reaches 90%", func() {
			g.TimeUpdate(0, 9, 10)

			Convey("Then it keeps playing", func() {
				So(g.Completed(0), ShouldBeTrue)
				So(g.Completed(1), ShouldBeFalse)
				So(g.State(), ShouldEqual, playback.Playing)
			})
		})

		Convey("When progress stays below 90%", func() {
			g.TimeUpdate(0, 8.9, 10)
			g.TimeUpdate(1, 5, 10)

			Convey("Then no stream completes", func() {
				So(g.Completed(0), ShouldBeFalse)
				So(g.Completed(1), ShouldBeFalse)
			})
		})

		Convey("When the duration is not known yet", func() {
			g.TimeUpdate(0, 3, math.NaN())
			g.TimeUpdate(1, 3, 0)

			Convey("Then nothing completes", func() {
				So(g.State(), ShouldEqual, playback.Playing)
			})
		})

		Convey("When one stream hits the threshold and the other ends", func() {
			g.TimeUpdate(0, 9.5, 10)
			g.Ended(1)

			Convey("Then the gate is ready and accepts exactly one response", func() {
				So(g.State(), ShouldEqual, playback.ReadyForResponse)
				So(g.Wait(context.Background()), ShouldBeNil)
				So(g.Respond(), ShouldBeNil)
				So(g.State(), ShouldEqual, playback.ResponseGiven)
				So(g.Respond(), ShouldEqual, playback.ErrAlreadyResponded)
			})

			Convey("Then later media events are ignored", func() {
				g.Ended(0)
				g.TimeUpdate(1, 10, 10)
				So(g.State(), ShouldEqual, playback.ReadyForResponse)
			})
		})

		Convey("When events name unknown streams", func() {
			g.Ended(-1)
			g.Ended(5)

			Convey("Then they are ignored", func() {
				So(g.State(), ShouldEqual, playback.Playing)
			})
		})
	})

	Convey("Given a gate with no streams", t, func() {
		g := playback.NewGate(0)
		So(g.State(), ShouldEqual, playback.ReadyForResponse)
		So(g.Respond(), ShouldBeNil)
	})

	Convey("Given state names", t, func() {
		So(playback.Playing.String(), ShouldEqual, "playing")
		So(playback.ReadyForResponse.String(), ShouldEqual, "ready_for_response")
		So(playback.ResponseGiven.String(), ShouldEqual, "response_given")
	})
}

func TestGateFallback(t *testing.T) {
	Convey("Given a gate with a short fallback delay", t, func() {
		g := playback.NewGate(2, playback.WithFallback(10*time.Millisecond, 0.8))
		defer g.Stop()

		Convey("When both streams are past 80% at the probe", func() {
			var calls atomic.Int32
			g.StartFallback(func(int) (float64, float64) {
				calls.Add(1)
				return 8.5, 10
			})
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			Convey("Then the fallback completes the gate", func() {
				So(g.Wait(ctx), ShouldBeNil)
				So(g.State(), ShouldEqual, playback.ReadyForResponse)
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When one stream already completed before the probe", func() {
			g.Ended(0)
			var probed []int
			done := make(chan struct{})
			g.StartFallback(func(stream int) (float64, float64) {
				probed = append(probed, stream)
				close(done)
				return 9, 10
			})

			Convey("Then only the pending stream is probed", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				So(g.Wait(context.Background()), ShouldBeNil)
				So(probed, ShouldResemble, []int{1})
			})
		})

		Convey("When the streams are below 80% at the probe", func() {
			fired := make(chan struct{}, 2)
			g.StartFallback(func(int) (float64, float64) {
				fired <- struct{}{}
				return 7, 10
			})
			<-fired
			<-fired

			Convey("Then the gate keeps playing until media events arrive", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				defer cancel()
				So(g.Wait(ctx), ShouldEqual, context.DeadlineExceeded)

				g.Ended(0)
				g.Ended(1)
				So(g.State(), ShouldEqual, playback.ReadyForResponse)
			})
		})

		Convey("When the gate is stopped before the probe fires", func() {
			var calls atomic.Int32
			g.StartFallback(func(int) (float64, float64) {
				calls.Add(1)
				return 10, 10
			})
			g.Stop()
			time.Sleep(30 * time.Millisecond)

			Convey("Then the probe never runs", func() {
				So(calls.Load(), ShouldEqual, 0)
				So(g.State(), ShouldEqual, playback.Playing)
			})
		})
	})
}
