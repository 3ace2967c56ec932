// Package autodiff implements tape-based reverse-mode automatic differentiation
// over float64 tensors.
//
// Every differentiable function is a method on *Tape. When the tape is recording
// it appends an Operation; when it is nil or stopped the function only computes,
// which is how inference runs without gradient tracking:
//
//	tape := autodiff.NewTape()
//	tape.StartRecording()
//	h := tape.Tanh(tape.AddBias(tape.MatMul(x, w), b))
//	loss := tape.MaskedMSE(h, target, mask)
//	grads := tape.Backward(loss)
//	dw := grads[w]
package autodiff

import (
	"github.com/born-ml/pots/internal/tensor"
)

// Operation is one differentiable step recorded during the forward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns one gradient per input; a nil entry means no gradient flows there.
	Backward(outputGrad *tensor.Tensor) []*tensor.Tensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor
}

// Gradients maps a tensor (by identity) to its accumulated gradient.
type Gradients map[*tensor.Tensor]*tensor.Tensor

// Tape records operations during the forward pass and computes gradients during
// the backward pass. A Tape is not safe for concurrent use; data-parallel
// replicas each own one.
type Tape struct {
	operations []Operation
	recording  bool
}

// NewTape creates a new, stopped tape.
func NewTape() *Tape {
	return &Tape{
		operations: make([]Operation, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *Tape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *Tape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
// A nil tape never records.
func (t *Tape) IsRecording() bool {
	return t != nil && t.recording
}

// record adds an operation to the tape if it is recording.
func (t *Tape) record(op Operation) {
	if t.IsRecording() {
		t.operations = append(t.operations, op)
	}
}

// Clear removes all recorded operations. Recording state is preserved.
func (t *Tape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *Tape) NumOps() int {
	if t == nil {
		return 0
	}
	return len(t.operations)
}

// Backward seeds d(output)/d(output) = 1 and walks the tape in reverse,
// accumulating gradients when a tensor feeds several operations.
//
// Recording is suspended for the duration of the walk.
func (t *Tape) Backward(output *tensor.Tensor) Gradients {
	grads := make(Gradients)
	if t.NumOps() == 0 {
		return grads
	}

	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads[output] = tensor.Full(1, output.Shape()...)

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads := op.Backward(outGrad)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				tensor.AddInPlace(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}

	return grads
}
