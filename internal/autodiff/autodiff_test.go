package autodiff

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/tensor"
)

// numericGrad perturbs every entry of x and measures the change of f.
func numericGrad(x *tensor.Tensor, f func() float64) []float64 {
	const h = 1e-6
	out := make([]float64, x.Len())
	for i := range x.Data() {
		orig := x.Data()[i]
		x.Data()[i] = orig + h
		up := f()
		x.Data()[i] = orig - h
		down := f()
		x.Data()[i] = orig
		out[i] = (up - down) / (2 * h)
	}
	return out
}

func randomTensor(rng *rand.Rand, dims ...int) *tensor.Tensor {
	x := tensor.Zeros(dims...)
	for i := range x.Data() {
		x.Data()[i] = rng.NormFloat64()
	}
	return x
}

func TestNilTapeComputesWithoutRecording(t *testing.T) {
	var tape *Tape
	a := tensor.MustFromSlice([]float64{1, 2}, 1, 2)
	b := tensor.MustFromSlice([]float64{3, 4}, 2, 1)
	out := tape.MatMul(a, b)
	assert.Equal(t, 11.0, out.Item())
	assert.Equal(t, 0, tape.NumOps())
	assert.False(t, tape.IsRecording())
}

func TestStoppedTapeRecordsNothing(t *testing.T) {
	tape := NewTape()
	tape.Tanh(tensor.Full(0.5, 3))
	assert.Equal(t, 0, tape.NumOps())

	tape.StartRecording()
	tape.Tanh(tensor.Full(0.5, 3))
	assert.Equal(t, 1, tape.NumOps())
	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording())
}

func TestLinearTanhGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := randomTensor(rng, 4, 3)
	w := randomTensor(rng, 3, 2)
	b := randomTensor(rng, 2)
	target := randomTensor(rng, 4, 2)
	mask := tensor.Full(1, 4, 2)

	forward := func(tape *Tape) *tensor.Tensor {
		h := tape.Tanh(tape.AddBias(tape.MatMul(x, w), b))
		return tape.MaskedMSE(h, target, mask)
	}

	tape := NewTape()
	tape.StartRecording()
	grads := tape.Backward(forward(tape))

	scalar := func() float64 { return forward(nil).Item() }
	assert.InDeltaSlice(t, numericGrad(w, scalar), grads[w].Data(), 1e-6)
	assert.InDeltaSlice(t, numericGrad(b, scalar), grads[b].Data(), 1e-6)
	assert.InDeltaSlice(t, numericGrad(x, scalar), grads[x].Data(), 1e-6)
}

func TestSigmoidReLUConcatGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	a := randomTensor(rng, 2, 2)
	c := randomTensor(rng, 2, 3)
	target := randomTensor(rng, 2, 5)
	mask := tensor.Full(1, 2, 5)

	forward := func(tape *Tape) *tensor.Tensor {
		joined := tape.ConcatCols(tape.Sigmoid(a), tape.ReLU(tape.Scale(c, 2)))
		return tape.MaskedMSE(joined, target, mask)
	}

	tape := NewTape()
	tape.StartRecording()
	grads := tape.Backward(forward(tape))

	scalar := func() float64 { return forward(nil).Item() }
	assert.InDeltaSlice(t, numericGrad(a, scalar), grads[a].Data(), 1e-6)
	assert.InDeltaSlice(t, numericGrad(c, scalar), grads[c].Data(), 1e-5)
}

func TestReusedTensorAccumulates(t *testing.T) {
	x := tensor.MustFromSlice([]float64{1, 2, 3}, 3)
	tape := NewTape()
	tape.StartRecording()
	// y = x*x + x  ->  dy/dx = 2x + 1
	y := tape.Add(tape.Mul(x, x), x)
	grads := tape.Backward(y)
	assert.Equal(t, []float64{3, 5, 7}, grads[x].Data())
}

func TestSubGradientSigns(t *testing.T) {
	a := tensor.Full(1, 2)
	b := tensor.Full(5, 2)
	tape := NewTape()
	tape.StartRecording()
	grads := tape.Backward(tape.Sub(a, b))
	assert.Equal(t, []float64{1, 1}, grads[a].Data())
	assert.Equal(t, []float64{-1, -1}, grads[b].Data())
}

func TestMaskedLossIgnoresMissingEntries(t *testing.T) {
	pred := tensor.MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	target := tensor.MustFromSlice([]float64{2, math.NaN(), 1, math.NaN()}, 2, 2)
	mask := tensor.MustFromSlice([]float64{1, 0, 1, 0}, 2, 2)

	tape := NewTape()
	tape.StartRecording()
	mae := tape.MaskedMAE(pred, target, mask)
	assert.InDelta(t, 1.5, mae.Item(), 1e-12)

	grads := tape.Backward(mae)
	assert.Equal(t, []float64{-0.5, 0, 0.5, 0}, grads[pred].Data())
	assert.NotContains(t, grads, target)

	mse := (*Tape)(nil).MaskedMSE(pred, target, mask)
	assert.InDelta(t, 2.5, mse.Item(), 1e-12)
}

func TestMaskedLossAllMissingColumnIsZero(t *testing.T) {
	// Column 1 is never observed; its targets are NaN placeholders.
	pred := tensor.MustFromSlice([]float64{0.3, 7, -0.2, 9, 0.1, 11}, 3, 2)
	target := tensor.MustFromSlice([]float64{0.3, math.NaN(), -0.2, math.NaN(), 0.1, math.NaN()}, 3, 2)
	mask := tensor.MustFromSlice([]float64{1, 0, 1, 0, 1, 0}, 3, 2)

	tape := NewTape()
	tape.StartRecording()
	loss := tape.MaskedMSE(pred, target, mask)
	assert.Equal(t, 0.0, loss.Item())

	grads := tape.Backward(loss)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, grads[pred].At(i, 1))
	}

	// Nothing observed anywhere.
	empty := tensor.Zeros(3, 2)
	tape.Clear()
	loss = tape.MaskedMAE(pred, target, empty)
	assert.Equal(t, 0.0, loss.Item())
	grads = tape.Backward(loss)
	for _, g := range grads[pred].Data() {
		assert.Equal(t, 0.0, g)
	}
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	logits := randomTensor(rng, 4, 3)
	labels := []int{0, 2, 1, 2}

	tape := NewTape()
	tape.StartRecording()
	loss := tape.SoftmaxCrossEntropy(logits, labels)
	grads := tape.Backward(loss)

	scalar := func() float64 { return (*Tape)(nil).SoftmaxCrossEntropy(logits, labels).Item() }
	assert.InDeltaSlice(t, numericGrad(logits, scalar), grads[logits].Data(), 1e-6)

	uniform := (*Tape)(nil).SoftmaxCrossEntropy(tensor.Zeros(2, 4), []int{0, 3})
	assert.InDelta(t, math.Log(4), uniform.Item(), 1e-12)

	assert.Panics(t, func() { (*Tape)(nil).SoftmaxCrossEntropy(logits, []int{0, 1, 2, 3 + 1}) })
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	p := Softmax(tensor.MustFromSlice([]float64{1000, 1000, -5, 0}, 2, 2))
	require.True(t, p.IsFinite())
	assert.InDelta(t, 0.5, p.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, p.At(1, 0)+p.At(1, 1), 1e-12)
}

func TestDropoutDeterministicAndScaled(t *testing.T) {
	x := tensor.Full(1, 1000)
	tape := NewTape()
	tape.StartRecording()

	a := tape.Dropout(x, 0.25, rand.New(rand.NewPCG(9, 9)))
	b := (*Tape)(nil).Dropout(x, 0.25, rand.New(rand.NewPCG(9, 9)))
	assert.Equal(t, a.Data(), b.Data())

	for _, v := range a.Data() {
		assert.True(t, v == 0 || math.Abs(v-1/0.75) < 1e-12)
	}

	grads := tape.Backward(a)
	assert.Equal(t, a.Data(), grads[x].Data())

	assert.Same(t, x, tape.Dropout(x, 0.5, nil))
	assert.Same(t, x, tape.Dropout(x, 0, rand.New(rand.NewPCG(1, 1))))
}

func TestReshapeRoutesGradientToInputShape(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	x := randomTensor(rng, 6, 2)
	target := randomTensor(rng, 2, 3, 2)
	mask := tensor.Full(1, 2, 3, 2)

	forward := func(tape *Tape) *tensor.Tensor {
		return tape.MaskedMSE(tape.Reshape(tape.Tanh(x), 2, 3, 2), target, mask)
	}

	tape := NewTape()
	tape.StartRecording()
	grads := tape.Backward(forward(tape))
	require.Contains(t, grads, x)
	assert.Equal(t, tensor.Shape{6, 2}, grads[x].Shape())
	assert.InDeltaSlice(t, numericGrad(x, func() float64 { return forward(nil).Item() }), grads[x].Data(), 1e-6)
}
