package forecasting

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/data"
	"github.com/born-ml/pots/tensor"
)

func TestForecastShape(t *testing.T) {
	series := tensor.Zeros(60, 1)
	for i := range series.Data() {
		series.Data()[i] = math.Sin(float64(i) / 5)
	}
	ds, err := data.WindowForecast(series, tensor.Full(1, 60, 1), 8, 2, 2)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Epochs = 3
	cfg.BatchSize = 8
	f, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = f.Fit(context.Background(), ds, ds)
	require.NoError(t, err)

	out, err := f.Forecast(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{ds.N(), 2, 1}, out.Shape())
}
