package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testMeterProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewMetrics_RecordsCommands(t *testing.T) {
	mp, reader := testMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	m.CommandsReceived.Add(context.Background(), 1,
		metric.WithAttributes(Attr("kind", "select")))
	m.CommandsReceived.Add(context.Background(), 1,
		metric.WithAttributes(Attr("kind", "select")))

	rm := collect(t, reader)
	got, ok := findMetric(rm, "pulsecord.commands.received")
	if !ok {
		t.Fatal("commands counter not collected")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", got.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("data points = %+v, want one point with value 2", sum.DataPoints)
	}
}

func TestRegisterPipeline_ObservesSampler(t *testing.T) {
	mp, reader := testMeterProvider()
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	stats := PipelineStats{
		FramesSent:     100,
		SilenceFrames:  7,
		SendDrops:      1,
		ChunksDropped:  3,
		BufferedFrames: 12,
	}
	reg, err := m.RegisterPipeline(func() PipelineStats { return stats })
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Unregister()

	rm := collect(t, reader)
	wantSums := map[string]int64{
		"pulsecord.frames.sent":         100,
		"pulsecord.frames.silence":      7,
		"pulsecord.frames.send_dropped": 1,
		"pulsecord.buffer.dropped":      3,
	}
	for name, want := range wantSums {
		got, ok := findMetric(rm, name)
		if !ok {
			t.Errorf("%s not collected", name)
			continue
		}
		sum, ok := got.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Errorf("%s: unexpected data %+v", name, got.Data)
			continue
		}
		if sum.DataPoints[0].Value != want {
			t.Errorf("%s = %d, want %d", name, sum.DataPoints[0].Value, want)
		}
	}

	fill, ok := findMetric(rm, "pulsecord.buffer.fill")
	if !ok {
		t.Fatal("buffer fill gauge not collected")
	}
	gauge, ok := fill.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 12 {
		t.Errorf("buffer fill = %+v, want 12", fill.Data)
	}
}
