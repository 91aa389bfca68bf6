package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/gesture/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	convey.Convey("Given model output scores", t, func() {
		convey.Convey("When one class clearly wins", func() {
			l, err := model.Decode([]float32{0.1, 0.2, 0.7})
			convey.So(err, convey.ShouldBeNil)
			convey.So(l, convey.ShouldEqual, model.Scissors)
			convey.So(l.String(), convey.ShouldEqual, "scissors")
		})

		convey.Convey("When two classes tie for the max", func() {
			l, err := model.Decode([]float32{0.2, 0.4, 0.4})

			convey.Convey("Then the lowest index wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(l, convey.ShouldEqual, model.Paper)
			})
		})

		convey.Convey("When the vector is longer than the label set", func() {
			l, err := model.Decode([]float32{0.5, 0.1, 0.1, 0.9})
			convey.So(err, convey.ShouldBeNil)
			convey.So(l, convey.ShouldEqual, model.Rock)
		})

		convey.Convey("When the vector is too short", func() {
			_, err := model.Decode([]float32{1, 0})
			convey.So(errors.Is(err, model.ErrShortOutput), convey.ShouldBeTrue)
		})
	})
}

func TestPredictionResult(t *testing.T) {
	convey.Convey("Given prediction results", t, func() {
		convey.Convey("When a label was detected", func() {
			r := model.Detected(model.Paper)
			convey.So(r.NoDetection(), convey.ShouldBeFalse)
			convey.So(*r.Prediction(), convey.ShouldEqual, "paper")
		})

		convey.Convey("When nothing was detected", func() {
			r := model.NoDetection()
			convey.So(r.NoDetection(), convey.ShouldBeTrue)
			convey.So(r.Prediction(), convey.ShouldBeNil)
		})
	})
}

func TestPredictionEvent(t *testing.T) {
	convey.Convey("Given a completed prediction", t, func() {
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		convey.Convey("When it produced a label", func() {
			ev := model.NewPredictionEvent("e1", "r1", 3, model.Detected(model.Rock), 40*time.Millisecond, at)

			convey.Convey("Then the event carries the label name", func() {
				convey.So(ev.EventID, convey.ShouldEqual, "e1")
				convey.So(ev.RequestID, convey.ShouldEqual, "r1")
				convey.So(ev.ModelID, convey.ShouldEqual, 3)
				convey.So(ev.Label, convey.ShouldEqual, "rock")
				convey.So(ev.NoDetection, convey.ShouldBeFalse)
				convey.So(ev.At, convey.ShouldEqual, at)
			})
		})

		convey.Convey("When nothing was detected", func() {
			ev := model.NewPredictionEvent("e2", "r2", 3, model.NoDetection(), time.Millisecond, at)
			convey.So(ev.Label, convey.ShouldBeEmpty)
			convey.So(ev.NoDetection, convey.ShouldBeTrue)
		})

		convey.Convey("When a label index is out of range", func() {
			convey.So(model.Label(7).String(), convey.ShouldEqual, "label(7)")
		})
	})
}
