package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/gesture/internal/domain/tensor"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
)

// recorder appends its id to a one-element tensor so order is visible.
type recorder struct {
	id    transform.ID
	none  bool
	err   error
	calls *[]transform.ID
}

func (r recorder) Name() string { return r.id.Name() }

func (r recorder) Apply(_ context.Context, in tensor.Tensor) (tensor.Tensor, bool, error) {
	*r.calls = append(*r.calls, r.id)
	if r.err != nil {
		return tensor.Tensor{}, false, r.err
	}
	if r.none {
		return tensor.Tensor{}, false, nil
	}
	out := in.Clone()
	out.Data[0] = out.Data[0]*10 + float32(r.id)
	return out, true, nil
}

type mapResolver map[transform.ID]transform.Transform

func (m mapResolver) Resolve(_ context.Context, id transform.ID) (transform.Transform, error) {
	t, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", transform.ErrUnknownTransform, int(id))
	}
	return t, nil
}

func TestExecutor(t *testing.T) {
	Convey("Given an executor over recording transforms", t, func() {
		var calls []transform.ID
		var seen []StageEvent
		res := mapResolver{
			1: recorder{id: 1, calls: &calls},
			2: recorder{id: 2, calls: &calls},
			3: recorder{id: 3, calls: &calls},
			8: recorder{id: 8, none: true, calls: &calls},
			5: recorder{id: 5, err: &transform.PreconditionError{Transform: "normalize", Expected: "3-D", Got: "[1 2 2 1]"}, calls: &calls},
		}
		exec := New(res,
			WithLogger(logger.Nop()),
			WithObserver(ObserverFunc(func(_ context.Context, ev StageEvent) { seen = append(seen, ev) })),
		)
		ctx := WithRequestID(context.Background(), "req-1")
		in := tensor.New(tensor.Uint8, 1)

		Convey("When the chain runs", func() {
			out, ok, err := exec.Run(ctx, in, []transform.ID{1, 2, 3})

			Convey("Then stages apply in list order and are observed", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out.Data[0], ShouldEqual, 123)
				So(calls, ShouldResemble, []transform.ID{1, 2, 3})
				So(len(seen), ShouldEqual, 3)
				So(seen[2].Index, ShouldEqual, 2)
				So(seen[0].RequestID, ShouldEqual, "req-1")
				So(seen[1].Transform, ShouldEqual, transform.ID(2).Name())
			})
		})

		Convey("When the same stages run in another order", func() {
			out, _, err := exec.Run(ctx, in, []transform.ID{3, 2, 1})

			Convey("Then the output differs", func() {
				So(err, ShouldBeNil)
				So(out.Data[0], ShouldEqual, 321)
			})
		})

		Convey("When a stage finds nothing, at any position", func() {
			for _, chain := range [][]transform.ID{{8, 1, 2}, {1, 8, 2}, {1, 2, 8}} {
				calls = nil
				_, ok, err := exec.Run(ctx, in, chain)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(calls[len(calls)-1], ShouldEqual, transform.ID(8))
			}
		})

		Convey("When a stage rejects its input", func() {
			_, ok, err := exec.Run(ctx, in, []transform.ID{1, 5, 2})

			Convey("Then it is a hard failure naming the transform", func() {
				So(ok, ShouldBeFalse)
				var pe *transform.PreconditionError
				So(errors.As(err, &pe), ShouldBeTrue)
				So(pe.Transform, ShouldEqual, "normalize")
				So(errors.Is(err, transform.ErrPrecondition), ShouldBeTrue)
				So(calls, ShouldResemble, []transform.ID{1, 5})
			})
		})

		Convey("When the chain names an unknown id", func() {
			_, _, err := exec.Run(ctx, in, []transform.ID{1, 42})
			So(errors.Is(err, transform.ErrUnknownTransform), ShouldBeTrue)
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := exec.Run(cctx, in, []transform.ID{1})

			Convey("Then no stage runs", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(calls, ShouldBeEmpty)
			})
		})

		Convey("When the observer panics", func() {
			exec := New(res, WithLogger(logger.Nop()), WithObserver(ObserverFunc(func(context.Context, StageEvent) { panic("disk full") })))
			out, ok, err := exec.Run(ctx, in, []transform.ID{1, 2})

			Convey("Then the chain still completes", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out.Data[0], ShouldEqual, 12)
			})
		})

		Convey("When a chain is prepared", func() {
			Convey("Then ids outside the catalog are skipped and nothing is applied", func() {
				So(exec.Prepare(ctx, []transform.ID{1, 2, 42}), ShouldBeNil)
				So(calls, ShouldBeEmpty)
			})

			Convey("Then a transform that cannot be resolved fails it", func() {
				err := exec.Prepare(ctx, []transform.ID{1, transform.UnetSegmentation})
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "stage 1")
			})
		})

		Convey("When the chain is empty", func() {
			out, ok, err := exec.Run(ctx, in, nil)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(out.Data[0], ShouldEqual, 0)
		})
	})
}
