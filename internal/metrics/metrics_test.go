package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func swap(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStage_SuccessAndFailure(t *testing.T) {
	fb := swap(t)

	RecordStage("promo", "load", "user_promo_dataset", nil, 2*time.Second)
	RecordStage("promo", "write", "top_10_promocodes_most_used", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms; want 2/2", len(fb.callsCounters), len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != StageTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v", cc0)
	}
	want := Labels{"job": "promo", "stage": "load", "object": "user_promo_dataset", "status": "success"}
	for k, v := range want {
		if cc0.labels[k] != v {
			t.Fatalf("counter[0].labels[%s] = %q, want %q", k, cc0.labels[k], v)
		}
	}
	if h0 := fb.callsHistograms[0]; h0.name != StageDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v", h0)
	}

	if got := fb.callsCounters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1] status = %q, want failure", got)
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value = %v, want ~1.5", h1.value)
	}
}

func TestRecordRowsAndBatches(t *testing.T) {
	fb := swap(t)

	RecordRows("promo", RowsLoaded, 3)
	RecordRows("promo", RowsLoaded, 0) // ignored
	RecordRows("promo", RowsWritten, 5)
	RecordBatches("users", 2)
	RecordBatches("users", -1) // ignored

	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d", len(fb.callsCounters))
	}
	c0, c1, c2 := fb.callsCounters[0], fb.callsCounters[1], fb.callsCounters[2]
	if c0.name != RowsTotal || c0.delta != 3 || c0.labels["kind"] != RowsLoaded {
		t.Fatalf("counter[0] = %#v", c0)
	}
	if c1.delta != 5 || c1.labels["kind"] != RowsWritten || c1.labels["job"] != "promo" {
		t.Fatalf("counter[1] = %#v", c1)
	}
	if c2.name != BatchesTotal || c2.delta != 2 || c2.labels["table"] != "users" {
		t.Fatalf("counter[2] = %#v", c2)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := swap(t)

	if current() != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if current() != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
