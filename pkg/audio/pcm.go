package audio

// PCM16ToFloat32 converts signed 16-bit little-endian mono PCM into
// normalized float32 samples in [-1, 1], the conversion the Ingress / VAD
// Gate applies before handing a window to a VAD or ASR backend.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		if sample < 0 {
			out[i] = float32(sample) / 32768.0
		} else {
			out[i] = float32(sample) / 32767.0
		}
	}
	return out
}

// Float32ToPCM16 is the inverse of PCM16ToFloat32, used when a capability
// provider (e.g. a batch HTTP ASR backend) needs s16le bytes rather than
// normalized floats.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		var sample int16
		if f < 0 {
			sample = int16(f * 32768)
		} else {
			sample = int16(f * 32767)
		}
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}
