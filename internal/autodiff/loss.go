package autodiff

import (
	"fmt"
	"math"

	"github.com/born-ml/pots/internal/tensor"
)

// maskedReduction is the shared forward/backward of masked elementwise losses.
//
// The loss is Σ_{mask>0} mask·ℓ(pred, target) / Σ mask. Entries with mask 0 are
// skipped before either operand is read, so a NaN placeholder in target can
// never reach the sum or the gradient. When nothing is observed the loss is
// exactly 0 and no gradient flows.
type maskedReduction struct {
	pred, target, mask *tensor.Tensor
	output             *tensor.Tensor
	denom              float64
	dloss              func(p, t float64) float64
}

func (op *maskedReduction) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.pred} }
func (op *maskedReduction) Output() *tensor.Tensor   { return op.output }

// Backward implements Operation. Only pred receives a gradient.
func (op *maskedReduction) Backward(g *tensor.Tensor) []*tensor.Tensor {
	grad := tensor.Zeros(op.pred.Shape()...)
	if op.denom == 0 {
		return []*tensor.Tensor{grad}
	}
	scale := g.Item() / op.denom
	p, t, m, out := op.pred.Data(), op.target.Data(), op.mask.Data(), grad.Data()
	for i, w := range m {
		if w == 0 {
			continue
		}
		out[i] = scale * w * op.dloss(p[i], t[i])
	}
	return []*tensor.Tensor{grad}
}

func (t *Tape) maskedLoss(name string, pred, target, mask *tensor.Tensor,
	loss, dloss func(p, t float64) float64) *tensor.Tensor {
	if !pred.Shape().Equal(target.Shape()) || !pred.Shape().Equal(mask.Shape()) {
		panic(fmt.Sprintf("autodiff.%s: shapes differ: pred %v, target %v, mask %v",
			name, pred.Shape(), target.Shape(), mask.Shape()))
	}
	p, tg, m := pred.Data(), target.Data(), mask.Data()
	var num, denom float64
	for i, w := range m {
		if w == 0 {
			continue
		}
		num += w * loss(p[i], tg[i])
		denom += w
	}
	value := 0.0
	if denom > 0 {
		value = num / denom
	}
	out := tensor.Scalar(value)
	t.record(&maskedReduction{pred: pred, target: target, mask: mask, output: out, denom: denom, dloss: dloss})
	return out
}

// MaskedMAE returns the mean absolute error over entries where mask > 0.
func (t *Tape) MaskedMAE(pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return t.maskedLoss("MaskedMAE", pred, target, mask,
		func(p, y float64) float64 { return math.Abs(p - y) },
		func(p, y float64) float64 {
			switch {
			case p > y:
				return 1
			case p < y:
				return -1
			default:
				return 0
			}
		})
}

// MaskedMSE returns the mean squared error over entries where mask > 0.
func (t *Tape) MaskedMSE(pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return t.maskedLoss("MaskedMSE", pred, target, mask,
		func(p, y float64) float64 { d := p - y; return d * d },
		func(p, y float64) float64 { return 2 * (p - y) })
}

// SoftmaxCrossEntropyOp is the mean negative log-likelihood of integer labels
// under a row-wise softmax of logits [n, c].
type SoftmaxCrossEntropyOp struct {
	unaryOp
	probs  *tensor.Tensor
	labels []int
}

// Backward implements Operation: (softmax - onehot) / n.
func (op *SoftmaxCrossEntropyOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	n, c := op.probs.Dim(0), op.probs.Dim(1)
	grad := op.probs.Clone()
	if n == 0 {
		return []*tensor.Tensor{grad}
	}
	scale := g.Item() / float64(n)
	data := grad.Data()
	for i := 0; i < n; i++ {
		data[i*c+op.labels[i]] -= 1
	}
	for i := range data {
		data[i] *= scale
	}
	return []*tensor.Tensor{grad}
}

// SoftmaxCrossEntropy returns mean cross-entropy of logits [n, c] against labels.
func (t *Tape) SoftmaxCrossEntropy(logits *tensor.Tensor, labels []int) *tensor.Tensor {
	n, c := logits.Dim(0), logits.Dim(1)
	if len(labels) != n {
		panic(fmt.Sprintf("autodiff.SoftmaxCrossEntropy: %d labels for %d rows", len(labels), n))
	}
	probs := Softmax(logits)
	var nll float64
	for i, y := range labels {
		if y < 0 || y >= c {
			panic(fmt.Sprintf("autodiff.SoftmaxCrossEntropy: label %d out of range [0, %d)", y, c))
		}
		nll -= math.Log(math.Max(probs.Data()[i*c+y], 1e-300))
	}
	value := 0.0
	if n > 0 {
		value = nll / float64(n)
	}
	out := tensor.Scalar(value)
	t.record(&SoftmaxCrossEntropyOp{unaryOp{logits, out}, probs, labels})
	return out
}

// Softmax returns the row-wise softmax of a [n, c] tensor. It is not recorded.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	n, c := logits.Dim(0), logits.Dim(1)
	out := logits.Clone()
	data := out.Data()
	for i := 0; i < n; i++ {
		row := data[i*c : (i+1)*c]
		maxv := math.Inf(-1)
		for _, v := range row {
			maxv = math.Max(maxv, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - maxv)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return out
}
