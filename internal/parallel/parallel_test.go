package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 8

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(_ int) { called = true }, DefaultConfig())
	if called {
		t.Error("f must not be called for n == 0")
	}
}

func TestChunks_CoverRangeOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 3}
	n := 37
	hits := make([]int32, n)

	Chunks(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Errorf("index %d visited %d times", i, h)
		}
	}
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	data := make([]float64, 1<<16)

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			For(len(data), func(j int) { data[j] = float64(j) * 0.5 }, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			For(len(data), func(j int) { data[j] = float64(j) * 0.5 }, Sequential())
		}
	})
}
