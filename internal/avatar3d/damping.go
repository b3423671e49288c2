package avatar3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Damping rates (1/s)
const (
	limbDamping     float32 = 4
	emissiveDamping float32 = 8
)

// Damp moves current toward target by the frame-rate independent factor 1-e^(-k*dt).
// The result always lies between current and target.
func Damp(current, target, k, dt float32) float32 {
	if dt <= 0 {
		return current
	}
	return current + (target-current)*(1-exp32(-k*dt))
}

func dampVec2(current, target mgl32.Vec2, k, dt float32) mgl32.Vec2 {
	return mgl32.Vec2{Damp(current[0], target[0], k, dt), Damp(current[1], target[1], k, dt)}
}

func dampVec3(current, target mgl32.Vec3, k, dt float32) mgl32.Vec3 {
	return mgl32.Vec3{
		Damp(current[0], target[0], k, dt),
		Damp(current[1], target[1], k, dt),
		Damp(current[2], target[2], k, dt),
	}
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

func sin32(x float32) float32 {
	return float32(math.Sin(float64(x)))
}

func cos32(x float32) float32 {
	return float32(math.Cos(float64(x)))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
