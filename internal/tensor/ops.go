package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/pots/internal/parallel"
)

// dense views a rank-2 tensor as a gonum matrix sharing the same buffer.
func dense(t *Tensor) *mat.Dense {
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

func requireRank2(op string, ts ...*Tensor) {
	for _, t := range ts {
		if len(t.shape) != 2 {
			panic(fmt.Sprintf("tensor.%s: expected rank-2 operands, got shape %v", op, t.shape))
		}
	}
}

// matmul computes dst = op(a) * op(b) with gonum, where op is identity or
// transpose. Zero-sized results are returned without calling into gonum, which
// rejects empty matrices.
func matmul(op string, a, b *Tensor, transA, transB bool) *Tensor {
	requireRank2(op, a, b)
	n, k := a.shape[0], a.shape[1]
	if transA {
		n, k = k, n
	}
	kb, m := b.shape[0], b.shape[1]
	if transB {
		kb, m = m, kb
	}
	if k != kb {
		panic(fmt.Sprintf("tensor.%s: inner dimensions differ: %v x %v", op, a.shape, b.shape))
	}
	out := Zeros(n, m)
	if n == 0 || m == 0 || k == 0 {
		return out
	}
	var left, right mat.Matrix = dense(a), dense(b)
	if transA {
		left = left.T()
	}
	if transB {
		right = right.T()
	}
	dense(out).Mul(left, right)
	return out
}

// MatMul returns a @ b for a [n, k] and b [k, m].
func MatMul(a, b *Tensor) *Tensor {
	return matmul("MatMul", a, b, false, false)
}

// MatMulTransA returns aᵀ @ b for a [k, n] and b [k, m].
func MatMulTransA(a, b *Tensor) *Tensor {
	return matmul("MatMulTransA", a, b, true, false)
}

// MatMulTransB returns a @ bᵀ for a [n, k] and b [m, k].
func MatMulTransB(a, b *Tensor) *Tensor {
	return matmul("MatMulTransB", a, b, false, true)
}

// Map applies f elementwise into a new tensor. Large tensors are split across
// workers; each element is written by exactly one worker, so the result does not
// depend on scheduling.
func Map(t *Tensor, f func(float64) float64) *Tensor {
	out := &Tensor{shape: t.shape.Clone(), data: make([]float64, len(t.data))}
	src := t.data
	parallel.For(len(src), func(i int) {
		out.data[i] = f(src[i])
	}, parallel.DefaultConfig())
	return out
}

// Zip applies f elementwise over two equal-shape tensors into a new tensor.
func Zip(a, b *Tensor, f func(x, y float64) float64) *Tensor {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("tensor.Zip: shape mismatch %v vs %v", a.shape, b.shape))
	}
	out := &Tensor{shape: a.shape.Clone(), data: make([]float64, len(a.data))}
	parallel.For(len(a.data), func(i int) {
		out.data[i] = f(a.data[i], b.data[i])
	}, parallel.DefaultConfig())
	return out
}

// Add returns a + b elementwise.
func Add(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b elementwise.
func Sub(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns a * b elementwise.
func Mul(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x * y })
}

// Scale returns c * t.
func Scale(t *Tensor, c float64) *Tensor {
	return Map(t, func(x float64) float64 { return c * x })
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src *Tensor) {
	if !dst.shape.Equal(src.shape) {
		panic(fmt.Sprintf("tensor.AddInPlace: shape mismatch %v vs %v", dst.shape, src.shape))
	}
	for i, v := range src.data {
		dst.data[i] += v
	}
}

// AxpyInPlace computes dst += alpha * src.
func AxpyInPlace(dst *Tensor, alpha float64, src *Tensor) {
	if !dst.shape.Equal(src.shape) {
		panic(fmt.Sprintf("tensor.AxpyInPlace: shape mismatch %v vs %v", dst.shape, src.shape))
	}
	for i, v := range src.data {
		dst.data[i] += alpha * v
	}
}

// SumRows reduces a [n, m] tensor over its rows into [m].
func SumRows(t *Tensor) *Tensor {
	requireRank2("SumRows", t)
	n, m := t.shape[0], t.shape[1]
	out := Zeros(m)
	for i := 0; i < n; i++ {
		row := t.data[i*m : (i+1)*m]
		for j, v := range row {
			out.data[j] += v
		}
	}
	return out
}

// Transpose returns the transpose of a rank-2 tensor.
func Transpose(t *Tensor) *Tensor {
	requireRank2("Transpose", t)
	n, m := t.shape[0], t.shape[1]
	out := Zeros(m, n)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.data[j*n+i] = t.data[i*m+j]
		}
	}
	return out
}

// ConcatCols joins [n, p] and [n, q] into [n, p+q].
func ConcatCols(a, b *Tensor) *Tensor {
	requireRank2("ConcatCols", a, b)
	n, p, q := a.shape[0], a.shape[1], b.shape[1]
	if b.shape[0] != n {
		panic(fmt.Sprintf("tensor.ConcatCols: row mismatch %v vs %v", a.shape, b.shape))
	}
	out := Zeros(n, p+q)
	for i := 0; i < n; i++ {
		copy(out.data[i*(p+q):], a.data[i*p:(i+1)*p])
		copy(out.data[i*(p+q)+p:], b.data[i*q:(i+1)*q])
	}
	return out
}
