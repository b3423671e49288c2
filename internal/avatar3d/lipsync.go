package avatar3d

const (
	mouthRestScale     float32 = 0.05
	mouthRestIntensity float32 = 0
	mouthGlow          float32 = 1.5
)

// mouthEnvelope simulates speech with a two-frequency sum of sines, floored at the rest scale.
func mouthEnvelope(t float32) float32 {
	v := (sin32(t*25)+sin32(t*18))/4 + 0.3
	if v < mouthRestScale {
		return mouthRestScale
	}
	return v
}

// stepMouth returns the mouth scale and emissive intensity for this frame. While
// speaking both follow the envelope directly; otherwise they damp back to rest.
func stepMouth(scale, intensity float32, speaking bool, t, dt float32) (float32, float32) {
	if speaking {
		s := mouthEnvelope(t)
		return s, s * mouthGlow
	}
	return Damp(scale, mouthRestScale, limbDamping, dt), Damp(intensity, mouthRestIntensity, limbDamping, dt)
}
