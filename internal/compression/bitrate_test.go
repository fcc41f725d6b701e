package compression

import (
	"slices"
	"testing"
)

func TestSelectBitrate(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		targetMB int
		want     int
	}{
		{"three times over", 120_000_001, 40, 64},
		{"well over three times", 500_000_000, 40, 64},
		{"exactly three times", 120_000_000, 40, 96},
		{"between two and three", 90_000_000, 40, 96},
		{"exactly two times", 80_000_000, 40, 128},
		{"slightly over", 50_000_000, 40, 128},
		{"under target", 10_000_000, 40, 128},
		{"zero target uses default", 130_000_000, 0, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectBitrate(tt.size, tt.targetMB); got != tt.want {
				t.Fatalf("SelectBitrate(%d, %d) = %d, want %d", tt.size, tt.targetMB, got, tt.want)
			}
		})
	}
}

func TestSelectBitrateMatchesRatioExamples(t *testing.T) {
	// Comparisons are strict: a source just past 3x drops to 64, exactly 2x stays at 128.
	cases := map[int64]int{121_000_000: 64, 90_000_000: 96, 50_000_000: 128, 80_000_000: 128}
	for size, want := range cases {
		if got := SelectBitrate(size, 40); got != want {
			t.Errorf("SelectBitrate(%d, 40) = %d, want %d", size, got, want)
		}
	}
}

func TestShouldCompress(t *testing.T) {
	if ShouldCompress(40_000_000, 40) {
		t.Fatal("size equal to target should not compress")
	}
	if !ShouldCompress(40_000_001, 40) {
		t.Fatal("size above target should compress")
	}
	if !ShouldCompress(41_000_000, 0) {
		t.Fatal("zero target should fall back to default")
	}
}

func TestTranscodeArgs(t *testing.T) {
	args := TranscodeArgs("input.wav", "output.mp3", 96)
	want := []string{"-i", "input.wav", "-vn", "-ac", "1", "-ar", "44100", "-c:a", "libmp3lame", "-b:a", "96k", "output.mp3"}
	if !slices.Equal(args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", args, want)
	}
}
