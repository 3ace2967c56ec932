package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.True(t, s.Equal(Shape{2, 3, 4}))
	assert.False(t, s.Equal(Shape{2, 3}))
	assert.NoError(t, Shape{0, 5, 2}.Validate())
	assert.Error(t, Shape{-1, 2}.Validate())
	assert.Equal(t, 1, Shape{}.NumElements())
}

func TestFromSliceCopies(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5, 6}
	x, err := FromSlice(src, Shape{2, 3})
	require.NoError(t, err)
	src[0] = 100
	assert.Equal(t, 1.0, x.At(0, 0))
	assert.Equal(t, 6.0, x.At(1, 2))

	_, err = FromSlice(src, Shape{4, 2})
	assert.Error(t, err)
}

func TestReshapeSharesBuffer(t *testing.T) {
	x := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	v, err := x.Reshape(3, 2)
	require.NoError(t, err)
	v.Set(42, 2, 1)
	assert.Equal(t, 42.0, x.At(1, 2))

	_, err = x.Reshape(4, 2)
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	x := MustFromSlice([]float64{1, 2}, 2)
	c := x.Clone()
	c.Data()[0] = 9
	assert.Equal(t, 1.0, x.At(0))
}

func TestMatMulVariants(t *testing.T) {
	a := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := MustFromSlice([]float64{7, 8, 9, 10, 11, 12}, 3, 2)

	got := MatMul(a, b)
	assert.Equal(t, Shape{2, 2}, got.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, got.Data())

	// aᵀ @ a = [3, 3]
	ata := MatMulTransA(a, a)
	assert.Equal(t, Shape{3, 3}, ata.Shape())
	assert.Equal(t, 17.0, ata.At(0, 0))

	// a @ aᵀ = [2, 2]
	aat := MatMulTransB(a, a)
	assert.Equal(t, []float64{14, 32, 32, 77}, aat.Data())
}

func TestMatMulEmpty(t *testing.T) {
	a := Zeros(0, 3)
	b := Zeros(3, 2)
	got := MatMul(a, b)
	assert.Equal(t, Shape{0, 2}, got.Shape())
}

func TestMatMulShapeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { MatMul(Zeros(2, 3), Zeros(2, 3)) })
}

func TestElementwise(t *testing.T) {
	a := MustFromSlice([]float64{1, 2, 3}, 3)
	b := MustFromSlice([]float64{4, 5, 6}, 3)
	assert.Equal(t, []float64{5, 7, 9}, Add(a, b).Data())
	assert.Equal(t, []float64{-3, -3, -3}, Sub(a, b).Data())
	assert.Equal(t, []float64{4, 10, 18}, Mul(a, b).Data())
	assert.Equal(t, []float64{2, 4, 6}, Scale(a, 2).Data())

	AxpyInPlace(a, 0.5, b)
	assert.Equal(t, []float64{3, 4.5, 6}, a.Data())
}

func TestSumRowsTransposeConcat(t *testing.T) {
	x := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, []float64{5, 7, 9}, SumRows(x).Data())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, Transpose(x).Data())

	y := MustFromSlice([]float64{7, 8}, 2, 1)
	c := ConcatCols(x, y)
	assert.Equal(t, Shape{2, 4}, c.Shape())
	assert.Equal(t, []float64{1, 2, 3, 7, 4, 5, 6, 8}, c.Data())
}

func TestIsFiniteAndAllClose(t *testing.T) {
	x := MustFromSlice([]float64{1, 2}, 2)
	assert.True(t, x.IsFinite())
	y := MustFromSlice([]float64{1, math.NaN()}, 2)
	assert.False(t, y.IsFinite())

	assert.True(t, x.AllClose(MustFromSlice([]float64{1, 2 + 1e-12}, 2), 1e-9))
	assert.False(t, x.AllClose(MustFromSlice([]float64{1, 2.1}, 2), 1e-9))
}

func TestMapLargeTensorDeterministic(t *testing.T) {
	x := Zeros(1 << 15)
	for i := range x.Data() {
		x.Data()[i] = float64(i)
	}
	y := Map(x, func(v float64) float64 { return v * 2 })
	for i, v := range y.Data() {
		if v != float64(2*i) {
			t.Fatalf("index %d: got %v", i, v)
		}
	}
}
