package progress

import "testing"

func TestSamplerBuckets(t *testing.T) {
	s := NewSampler(10)
	percents := []float64{0, 3, 9.9, 10, 15, 31, 100}
	want := []bool{true, false, false, true, false, true, true}
	for i, pct := range percents {
		if got := s.Allow(Event{Stage: StageUploading, Percent: pct}); got != want[i] {
			t.Fatalf("Allow(%v) = %v, want %v", pct, got, want[i])
		}
	}
}

func TestSamplerStageAndPhaseChanges(t *testing.T) {
	s := NewSampler(25)
	if !s.Allow(Event{Stage: StageCompressing, Percent: 10, Phase: "compress"}) {
		t.Fatal("first event should pass")
	}
	if s.Allow(Event{Stage: StageCompressing, Percent: 12, Phase: "compress"}) {
		t.Fatal("same bucket should be dropped")
	}
	if !s.Allow(Event{Stage: StageUploading, Percent: 12, Phase: "upload"}) {
		t.Fatal("stage change should pass")
	}
	if !s.Allow(Event{Stage: StageUploading, Percent: 13, Phase: "verify"}) {
		t.Fatal("phase change should pass")
	}
}

func TestSamplerTerminalAlwaysAllowed(t *testing.T) {
	s := NewSampler(50)
	s.Allow(Event{Stage: StageUploading, Percent: 60})
	if !s.Allow(Event{Stage: StageError, Percent: 60}) {
		t.Fatal("terminal error should pass")
	}
	if !s.Allow(Event{Stage: StageDone, Percent: 100}) {
		t.Fatal("terminal done should pass")
	}
}

func TestSamplerNilAndReset(t *testing.T) {
	var nilSampler *Sampler
	if !nilSampler.Allow(Event{Stage: StageUploading}) {
		t.Fatal("nil sampler should allow")
	}
	nilSampler.Reset()

	s := NewSampler(0)
	s.Allow(Event{Stage: StageUploading, Percent: 40})
	if s.Allow(Event{Stage: StageUploading, Percent: 45}) {
		t.Fatal("expected default 10% buckets")
	}
	s.Reset()
	if !s.Allow(Event{Stage: StageUploading, Percent: 45}) {
		t.Fatal("expected event to pass after reset")
	}
}
