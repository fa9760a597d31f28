package qec

import "testing"

func TestDecodeFinalStateEmptyHistory(t *testing.T) {
	if DecodeFinalState(nil, nil, 0.01) {
		t.Fatal("empty history must decode as unflipped")
	}
}

func TestDecodeFinalStateFollowsPersistentFlip(t *testing.T) {
	obs := []bool{true, true, true, true, true}
	p := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	if !DecodeFinalState(obs, p, 0.01) {
		t.Fatal("persistent flipped observations should decode as flipped")
	}
}

func TestDecodeFinalStateIgnoresIsolatedGlitch(t *testing.T) {
	obs := []bool{false, false, true, false, false}
	p := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	if DecodeFinalState(obs, p, 0.1) {
		t.Fatal("single measurement glitch should not decode as flipped")
	}
}

func TestDecodeFinalStateHandlesDegenerateProbabilities(t *testing.T) {
	obs := []bool{false, true}
	p := []float64{0, 1}
	if !DecodeFinalState(obs, p, 0) {
		t.Fatal("certain flip in the last cycle should decode as flipped")
	}
	if DecodeFinalState([]bool{false}, []float64{0}, 0) {
		t.Fatal("clean single cycle should decode as unflipped")
	}
}

func TestDecodeSurfaceNoSyndrome(t *testing.T) {
	if got := DecodeSurface(Syndrome{}); got != nil {
		t.Fatalf("expected no correction, got %v", got)
	}
}

func TestDecodeSurfaceCorrectsEverySingleFlip(t *testing.T) {
	for q := 0; q < surfaceDataChannels; q++ {
		var flipped [surfaceDataChannels]bool
		flipped[q] = true
		for _, c := range DecodeSurface(SurfaceSyndrome(flipped)) {
			flipped[c] = !flipped[c]
		}
		if SurfaceSyndrome(flipped) != (Syndrome{}) {
			t.Fatalf("channel %d: residual syndrome after correction", q)
		}
		if SurfaceLogicalFlipped(flipped) {
			t.Fatalf("channel %d: single flip produced a logical error", q)
		}
	}
}

func TestDecodeSurfaceClearsEveryPairSyndrome(t *testing.T) {
	for q1 := 0; q1 < surfaceDataChannels; q1++ {
		for q2 := q1 + 1; q2 < surfaceDataChannels; q2++ {
			var flipped [surfaceDataChannels]bool
			flipped[q1], flipped[q2] = true, true
			correction := DecodeSurface(SurfaceSyndrome(flipped))
			if len(correction) > 2 {
				t.Fatalf("pair (%d,%d): correction %v exceeds weight 2", q1, q2, correction)
			}
			for _, c := range correction {
				flipped[c] = !flipped[c]
			}
			if SurfaceSyndrome(flipped) != (Syndrome{}) {
				t.Fatalf("pair (%d,%d): residual syndrome after correction", q1, q2)
			}
		}
	}
}

func TestSurfaceLogicalParity(t *testing.T) {
	var flipped [surfaceDataChannels]bool
	flipped[1], flipped[4], flipped[7] = true, true, true
	if !SurfaceLogicalFlipped(flipped) {
		t.Fatal("odd logical parity should report a flip")
	}
	flipped[7] = false
	if SurfaceLogicalFlipped(flipped) {
		t.Fatal("even logical parity should not report a flip")
	}
}
