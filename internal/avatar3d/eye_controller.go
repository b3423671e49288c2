package avatar3d

import "github.com/go-gl/mathgl/mgl32"

const (
	blinkStep     float32 = 0.2
	blinkFloor    float32 = 0.01
	minBlinkGap   float32 = 2
	blinkGapRange float32 = 4
)

// BlinkTimer is the blink sub-state carried between frames.
type BlinkTimer struct {
	NextBlinkAt float32 `json:"next_blink_at"`
	IsBlinking  bool    `json:"is_blinking"`
}

// Rand is the random source used to schedule blinks. *rand.Rand satisfies it.
type Rand interface {
	Float32() float32
}

// stepBlink advances the blink state machine by one frame and returns the new eye
// vertical scale. A blink only starts from fully open eyes and never while speaking.
func stepBlink(b BlinkTimer, eyeScale float32, speaking bool, t float32, rng Rand) (BlinkTimer, float32) {
	if t > b.NextBlinkAt && !speaking && !b.IsBlinking && eyeScale >= 1 {
		b.IsBlinking = true
		b.NextBlinkAt = t + rng.Float32()*blinkGapRange + minBlinkGap
	}

	if b.IsBlinking {
		eyeScale = mgl32.Clamp(eyeScale-blinkStep, blinkFloor, 1)
		if eyeScale <= blinkFloor {
			b.IsBlinking = false
		}
		return b, eyeScale
	}

	return b, mgl32.Clamp(eyeScale+blinkStep, blinkFloor, 1)
}
