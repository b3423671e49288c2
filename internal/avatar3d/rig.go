// Package avatar3d computes the robot avatar's per-frame pose from its mood and
// interaction overlay. Step is a pure function of its inputs; Avatar drives it over time.
package avatar3d

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/veriflow/internal/avatar"
)

// RigState is everything the rig carries from one frame to the next.
type RigState struct {
	Head           mgl32.Vec3 `json:"head"`
	LeftArm        mgl32.Vec2 `json:"left_arm"`
	RightArm       mgl32.Vec2 `json:"right_arm"`
	EyeIntensity   float32    `json:"eye_intensity"`
	EyeScale       float32    `json:"eye_scale"`
	MouthScale     float32    `json:"mouth_scale"`
	MouthIntensity float32    `json:"mouth_intensity"`
	BodyY          float32    `json:"body_y"`
	Blink          BlinkTimer `json:"blink"`
}

// NewRigState returns the rest pose: eyes open at unit glow, mouth closed and dark.
func NewRigState() RigState {
	return RigState{
		EyeIntensity: 1,
		EyeScale:     1,
		MouthScale:   mouthRestScale,
	}
}

// Pose is the per-frame output consumed by the renderer.
type Pose struct {
	Time           float32        `json:"t"`
	Mood           avatar.Mood    `json:"mood"`
	Overlay        avatar.Overlay `json:"overlay"`
	Head           mgl32.Vec3     `json:"head"`
	LeftArm        mgl32.Vec2     `json:"left_arm"`
	RightArm       mgl32.Vec2     `json:"right_arm"`
	EyeIntensity   float32        `json:"eye_intensity"`
	EyeScale       float32        `json:"eye_scale"`
	EyeColor       string         `json:"eye_color"`
	MouthScale     float32        `json:"mouth_scale"`
	MouthIntensity float32        `json:"mouth_intensity"`
	BodyY          float32        `json:"body_y"`
	Breath         float32        `json:"breath"`
}

// Step advances the rig by one frame at elapsed time t with frame delta dt.
func Step(s RigState, mood avatar.Mood, overlay avatar.Overlay, t, dt float32, rng Rand) (RigState, Pose) {
	next := s

	next.BodyY = Damp(s.BodyY, bobTarget(t), limbDamping, dt)

	target := ComputeTargets(mood, overlay, t)
	next.Head = dampVec3(s.Head, target.Head, limbDamping, dt)
	next.LeftArm = dampVec2(s.LeftArm, target.LeftArm, limbDamping, dt)
	next.RightArm = dampVec2(s.RightArm, target.RightArm, limbDamping, dt)
	next.EyeIntensity = Damp(s.EyeIntensity, target.EyeIntensity, emissiveDamping, dt)

	speaking := mood == avatar.MoodSpeaking
	next.Blink, next.EyeScale = stepBlink(s.Blink, s.EyeScale, speaking, t, rng)
	next.MouthScale, next.MouthIntensity = stepMouth(s.MouthScale, s.MouthIntensity, speaking, t, dt)

	return next, Pose{
		Time:           t,
		Mood:           mood,
		Overlay:        overlay,
		Head:           next.Head,
		LeftArm:        next.LeftArm,
		RightArm:       next.RightArm,
		EyeIntensity:   next.EyeIntensity,
		EyeScale:       next.EyeScale,
		EyeColor:       EyeColor(mood),
		MouthScale:     next.MouthScale,
		MouthIntensity: next.MouthIntensity,
		BodyY:          next.BodyY,
		Breath:         breathScale(t),
	}
}
