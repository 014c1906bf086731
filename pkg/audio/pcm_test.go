package audio

import "testing"

func TestPCM16ToFloat32RoundTripsZero(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0x00, 0x00}
	got := PCM16ToFloat32(pcm)
	if len(got) != 2 || got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected two zero samples, got %+v", got)
	}
}

func TestPCM16ToFloat32HandlesFullScale(t *testing.T) {
	// int16 max (32767) little-endian, then int16 min (-32768).
	pcm := []byte{0xFF, 0x7F, 0x00, 0x80}
	got := PCM16ToFloat32(pcm)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] <= 0.99 || got[0] > 1.0 {
		t.Errorf("expected int16 max to normalize close to 1.0, got %f", got[0])
	}
	if got[1] != -1.0 {
		t.Errorf("expected int16 min to normalize to exactly -1.0, got %f", got[1])
	}
}

func TestFloat32ToPCM16ClampsOutOfRange(t *testing.T) {
	out := Float32ToPCM16([]float32{2.0, -2.0})
	back := PCM16ToFloat32(out)
	if back[0] != 1.0 {
		t.Errorf("expected clamping to +1.0 before encoding, got %f", back[0])
	}
	if back[1] != -1.0 {
		t.Errorf("expected clamping to -1.0 before encoding, got %f", back[1])
	}
}

func TestPCM16ToFloat32IsInverseOfFloat32ToPCM16ForTypicalSamples(t *testing.T) {
	original := []float32{0.5, -0.5, 0.25, -0.75}
	pcm := Float32ToPCM16(original)
	back := PCM16ToFloat32(pcm)
	if len(back) != len(original) {
		t.Fatalf("expected round trip to preserve sample count, got %d vs %d", len(back), len(original))
	}
	for i, v := range original {
		diff := back[i] - v
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Errorf("sample %d: expected round trip within quantization error, got %f vs %f", i, back[i], v)
		}
	}
}
