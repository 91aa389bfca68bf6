package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/gesture/internal/domain/tensor"
)

// ONNXModel is one session with pre-allocated tensors. The single input is
// float32; every output is float32 and they are concatenated in graph order.
type ONNXModel struct {
	path string

	mu         sync.Mutex
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	outputs    []*ort.Tensor[float32]
	inputShape []int64
	closed     bool
}

// OpenONNX creates a session for the model at path. The runtime must be initialized.
func OpenONNX(path string) (*ONNXModel, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%w: %s has %d inputs, want 1", ErrInputShape, path, len(inputs))
	}

	m := &ONNXModel{path: path, inputShape: concreteShape(inputs[0].Dimensions)}
	m.input, err = ort.NewEmptyTensor[float32](ort.NewShape(m.inputShape...))
	if err != nil {
		return nil, fmt.Errorf("allocate input for %s: %w", path, err)
	}

	outNames := make([]string, len(outputs))
	outValues := make([]ort.ArbitraryTensor, len(outputs))
	for i, info := range outputs {
		if info.DataType != ort.TensorElementDataTypeFloat {
			m.destroy()
			return nil, fmt.Errorf("%w: %s output %q is %v", ErrOutputType, path, info.Name, info.DataType)
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(concreteShape(info.Dimensions)...))
		if err != nil {
			m.destroy()
			return nil, fmt.Errorf("allocate output %q for %s: %w", info.Name, path, err)
		}
		m.outputs = append(m.outputs, t)
		outNames[i] = info.Name
		outValues[i] = t
	}

	m.session, err = ort.NewAdvancedSession(path,
		[]string{inputs[0].Name}, outNames,
		[]ort.ArbitraryTensor{m.input}, outValues,
		nil)
	if err != nil {
		m.destroy()
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	return m, nil
}

// concreteShape replaces dynamic (-1) dims with 1.
func concreteShape(dims ort.Shape) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func elementCount(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// checkInput accepts any tensor whose element count matches the model input.
func checkInput(shape []int64, in tensor.Tensor) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if want := elementCount(shape); in.Size() != want {
		return fmt.Errorf("%w: model wants %v (%d values), got %v", ErrInputShape, shape, want, in.Shape)
	}
	return nil
}

// InputShape reports the resolved input shape.
func (m *ONNXModel) InputShape() []int64 { return append([]int64(nil), m.inputShape...) }

// Predict runs one forward pass. Sessions are not reentrant, so calls are serialized.
func (m *ONNXModel) Predict(ctx context.Context, in tensor.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkInput(m.inputShape, in); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	copy(m.input.GetData(), in.Data)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w", m.path, err)
	}
	var out []float32
	for _, t := range m.outputs {
		out = append(out, t.GetData()...)
	}
	return out, nil
}

// Close destroys the session and its tensors.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.destroy()
}

func (m *ONNXModel) destroy() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
	}
	for _, t := range m.outputs {
		errs = append(errs, t.Destroy())
	}
	return errors.Join(errs...)
}
