package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

func TestLinearShapesAndDeterministicInit(t *testing.T) {
	a := NewLinear("fc", 3, 2, rand.New(rand.NewPCG(7, 0)))
	b := NewLinear("fc", 3, 2, rand.New(rand.NewPCG(7, 0)))
	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())
	assert.Equal(t, tensor.Shape{3, 2}, a.Weight().Shape())
	assert.Equal(t, "fc.weight", a.Weight().Name())
	assert.Equal(t, "fc.bias", a.Bias().Name())
	assert.Equal(t, 8, NumParameters(a))

	bound := math.Sqrt(6.0 / 5.0)
	for _, v := range a.Weight().Tensor().Data() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}

	out := a.Forward(nil, tensor.Zeros(4, 3))
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())
	assert.Panics(t, func() { a.Forward(nil, tensor.Zeros(4, 5)) })
}

func TestLinearBackwardReachesParameters(t *testing.T) {
	l := NewLinear("fc", 2, 1, rand.New(rand.NewPCG(1, 1)))
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	target := tensor.MustFromSlice([]float64{0, 0}, 2, 1)
	mask := tensor.Full(1, 2, 1)

	tape := autodiff.NewTape()
	tape.StartRecording()
	loss := MaskedMSE(tape, l.Forward(tape, x), target, mask)
	grads := tape.Backward(loss)

	for _, p := range l.Parameters() {
		g, ok := grads[p.Tensor()]
		require.True(t, ok, p.Name())
		assert.Equal(t, p.Shape(), g.Shape())
	}
}

func TestRNNCellStep(t *testing.T) {
	c := NewRNNCell("rnn", 2, 3, rand.New(rand.NewPCG(2, 2)))
	assert.Len(t, c.Parameters(), 3)
	h := c.InitialState(4)
	h = c.Step(nil, tensor.Full(1, 4, 2), h)
	assert.Equal(t, tensor.Shape{4, 3}, h.Shape())
	for _, v := range h.Data() {
		assert.Less(t, math.Abs(v), 1.0)
	}
}

func TestStateDictRoundTrip(t *testing.T) {
	src := NewLinear("fc", 3, 2, rand.New(rand.NewPCG(1, 0)))
	dst := NewLinear("fc", 3, 2, rand.New(rand.NewPCG(2, 0)))

	state := StateDict(src)
	assert.Equal(t, []string{"fc.bias", "fc.weight"}, SortedNames(state))

	// The snapshot is detached from later updates.
	src.Weight().Tensor().Data()[0] += 100
	assert.NotEqual(t, src.Weight().Tensor().Data()[0], state["fc.weight"].Data()[0])

	require.NoError(t, LoadStateDict(dst, state))
	assert.Equal(t, state["fc.weight"].Data(), dst.Weight().Tensor().Data())
}

func TestLoadStateDictRejectsMismatchWithoutTouching(t *testing.T) {
	dst := NewLinear("fc", 3, 2, rand.New(rand.NewPCG(2, 0)))
	before := dst.Weight().Tensor().Clone()

	bad := StateDict(NewLinear("fc", 4, 2, rand.New(rand.NewPCG(1, 0))))
	err := LoadStateDict(dst, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrCompatibility))
	var ce *errs.CompatibilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fc.weight", ce.Field)
	assert.Equal(t, before.Data(), dst.Weight().Tensor().Data())

	missing := StateDict(dst)
	delete(missing, "fc.bias")
	missing["other"] = tensor.Zeros(2)
	assert.ErrorIs(t, LoadStateDict(dst, missing), errs.ErrCompatibility)

	assert.ErrorIs(t, LoadStateDict(dst, map[string]*tensor.Tensor{}), errs.ErrCompatibility)
}

func TestCollect(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	a := NewLinear("a", 1, 1, rng)
	b := NewLinear("b", 1, 1, rng)
	all := Collect(a, b)
	require.Len(t, all, 4)
	assert.Equal(t, "a.weight", all[0].Name())
	assert.Equal(t, "b.bias", all[3].Name())
}
