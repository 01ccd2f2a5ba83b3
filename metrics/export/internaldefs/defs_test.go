package internaldefs

import (
	"testing"

	"github.com/MrEthical07/clinicauth"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	if len(CounterDefs) != int(clinicauth.MetricAuthenticateLatency) {
		t.Fatalf("expected %d counters, got %d", clinicauth.MetricAuthenticateLatency, len(CounterDefs))
	}
	seen := map[string]bool{}
	for i, def := range CounterDefs {
		if def.ID != clinicauth.MetricID(i) {
			t.Fatalf("CounterDefs[%d] has id %d", i, def.ID)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(HistogramBoundValues) != len(HistogramBounds)-1 {
		t.Fatal("numeric bounds must omit +Inf")
	}
}
