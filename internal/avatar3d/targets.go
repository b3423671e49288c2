package avatar3d

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/veriflow/internal/avatar"
)

// Targets is the full set of damped pose targets for one frame.
// Arm vectors hold (pitch, roll), i.e. rotation about X then Z.
type Targets struct {
	Head         mgl32.Vec3
	LeftArm      mgl32.Vec2
	RightArm     mgl32.Vec2
	EyeIntensity float32
}

// OverlayTargets is a partial target set. Nil fields keep the mood-derived value.
type OverlayTargets struct {
	HeadX, HeadY, HeadZ  *float32
	LeftArmX, LeftArmZ   *float32
	RightArmX, RightArmZ *float32
	EyeIntensity         *float32
}

// Apply replaces every field of base that the overlay defines.
func (o OverlayTargets) Apply(base Targets) Targets {
	set := func(dst *float32, src *float32) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.Head[0], o.HeadX)
	set(&base.Head[1], o.HeadY)
	set(&base.Head[2], o.HeadZ)
	set(&base.LeftArm[0], o.LeftArmX)
	set(&base.LeftArm[1], o.LeftArmZ)
	set(&base.RightArm[0], o.RightArmX)
	set(&base.RightArm[1], o.RightArmZ)
	set(&base.EyeIntensity, o.EyeIntensity)
	return base
}

// MoodTargetFunc computes base targets at elapsed time t.
type MoodTargetFunc func(t float32) Targets

// OverlayTargetFunc computes overlay overrides at elapsed time t.
type OverlayTargetFunc func(t float32) OverlayTargets

var moodTargets = map[avatar.Mood]MoodTargetFunc{
	avatar.MoodIdle: func(t float32) Targets {
		return Targets{
			Head:         mgl32.Vec3{0, sin32(t*0.5)*0.2 + cos32(t*0.7)*0.1, sin32(t*0.4) * 0.05},
			LeftArm:      mgl32.Vec2{0, sin32(t*0.4) * 0.1},
			RightArm:     mgl32.Vec2{0, -sin32(t*0.45) * 0.1},
			EyeIntensity: 1,
		}
	},
	avatar.MoodListening: func(t float32) Targets {
		return Targets{
			Head:         mgl32.Vec3{0.25, 0.1, sin32(t*2.5) * 0.08},
			EyeIntensity: 1,
		}
	},
	avatar.MoodThinking: func(t float32) Targets {
		return Targets{
			Head:         mgl32.Vec3{0.3, -0.4, cos32(t*0.8) * 0.1},
			LeftArm:      mgl32.Vec2{0.2, 0},
			RightArm:     mgl32.Vec2{-1.4, -0.4},
			EyeIntensity: 1 + sin32(t*3)*0.5,
		}
	},
	avatar.MoodSpeaking: func(t float32) Targets {
		return Targets{
			Head:         mgl32.Vec3{0.1 + abs32(sin32(t*12))*0.1, 0, sin32(t*9) * 0.05},
			LeftArm:      mgl32.Vec2{-0.2 + sin32(t*8)*0.1, 0.1 + sin32(t*8)*0.15},
			RightArm:     mgl32.Vec2{-0.2 + cos32(t*7)*0.1, -0.1 + cos32(t*7)*0.15},
			EyeIntensity: 1,
		}
	},
}

var overlayTargets = map[avatar.Overlay]OverlayTargetFunc{
	avatar.OverlayDefault: func(float32) OverlayTargets {
		return OverlayTargets{}
	},
	avatar.OverlayUserTyping: func(float32) OverlayTargets {
		return OverlayTargets{HeadX: f32(-0.2), HeadY: f32(0.3)}
	},
	avatar.OverlayConfirmation: func(float32) OverlayTargets {
		return OverlayTargets{HeadX: f32(0.6), HeadY: f32(0), HeadZ: f32(0)}
	},
	avatar.OverlayAnalysisComplete: func(t float32) OverlayTargets {
		return OverlayTargets{
			HeadX:        f32(sin32(t*8) * 0.1),
			LeftArmX:     f32(-0.8),
			LeftArmZ:     f32(1.2),
			RightArmX:    f32(-0.8),
			RightArmZ:    f32(-1.2),
			EyeIntensity: f32(2),
		}
	},
}

// MoodTargets returns the base targets for mood at time t. Unknown moods fall back to idle.
func MoodTargets(mood avatar.Mood, t float32) Targets {
	fn, ok := moodTargets[mood]
	if !ok {
		fn = moodTargets[avatar.MoodIdle]
	}
	return fn(t)
}

// OverlayOverrides returns the partial targets for overlay at time t.
func OverlayOverrides(overlay avatar.Overlay, t float32) OverlayTargets {
	fn, ok := overlayTargets[overlay]
	if !ok {
		return OverlayTargets{}
	}
	return fn(t)
}

// ComputeTargets resolves the final targets: mood first, then overlay per field.
func ComputeTargets(mood avatar.Mood, overlay avatar.Overlay, t float32) Targets {
	return OverlayOverrides(overlay, t).Apply(MoodTargets(mood, t))
}

// EyeColor is the emissive color for a mood.
func EyeColor(mood avatar.Mood) string {
	switch mood {
	case avatar.MoodThinking:
		return "#6200ee"
	case avatar.MoodSpeaking:
		return "#f50057"
	default:
		return "#03dac6"
	}
}

func f32(v float32) *float32 { return &v }
