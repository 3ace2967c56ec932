package nn

import (
	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/tensor"
)

// MaskedMAE computes the mean absolute error over observed entries.
//
// Loss = Σ mask·|pred - target| / Σ mask
//
// Entries with mask 0 are never read, so target may hold NaN placeholders for
// missing values. If nothing is observed the loss is 0 with no gradient.
func MaskedMAE(tape *autodiff.Tape, pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return tape.MaskedMAE(pred, target, mask)
}

// MaskedMSE computes the mean squared error over observed entries.
//
// Loss = Σ mask·(pred - target)² / Σ mask
func MaskedMSE(tape *autodiff.Tape, pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return tape.MaskedMSE(pred, target, mask)
}

// CrossEntropy computes the mean softmax cross-entropy of logits [batch, classes]
// against integer labels.
func CrossEntropy(tape *autodiff.Tape, logits *tensor.Tensor, labels []int) *tensor.Tensor {
	return tape.SoftmaxCrossEntropy(logits, labels)
}
