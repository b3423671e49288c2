package avatar3d

const (
	bobRate      float32 = 1.5
	bobAmplitude float32 = 0.05
	breathRate   float32 = 0.8
	breathDepth  float32 = 0.01
)

// bobTarget is the vertical body offset the rig damps toward.
func bobTarget(t float32) float32 {
	return sin32(t*bobRate) * bobAmplitude
}

// breathScale is the torso's vertical scale, applied undamped.
func breathScale(t float32) float32 {
	return sin32(t*breathRate)*breathDepth + 1
}
