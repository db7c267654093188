package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Meter)
	require.NoError(t, shutdown(context.Background()))
}

func TestNew_EnabledWithoutListener(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: true, ServiceName: "heapidx-test", TraceSampleRatio: 5})
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	require.NotNil(t, tel.MeterProvider)

	counter, err := tel.Meter.Int64Counter("heapidx.test.calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := tel.Tracer.Start(context.Background(), "test")
	require.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}
