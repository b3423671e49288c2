package avatar3d

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/normanking/veriflow/internal/avatar"
)

// MaxFrameDelta caps dt so a stalled frame does not snap the pose.
const MaxFrameDelta float32 = 0.1

// StateSource supplies the current mood and overlay. *avatar.Controller satisfies it.
type StateSource interface {
	GetState() avatar.State
}

// Avatar owns a RigState and advances it frame by frame from a StateSource.
type Avatar struct {
	mu sync.RWMutex

	source  StateSource
	rng     Rand
	rig     RigState
	pose    Pose
	elapsed float32
}

// NewAvatar creates an avatar at the rest pose. A nil rng seeds one from the clock.
func NewAvatar(source StateSource, rng Rand) *Avatar {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	a := &Avatar{
		source: source,
		rng:    rng,
		rig:    NewRigState(),
	}
	a.pose = a.restPose()
	return a
}

func (a *Avatar) restPose() Pose {
	st := a.source.GetState()
	return Pose{
		Mood:           st.Mood,
		Overlay:        st.Overlay,
		Head:           a.rig.Head,
		LeftArm:        a.rig.LeftArm,
		RightArm:       a.rig.RightArm,
		EyeIntensity:   a.rig.EyeIntensity,
		EyeScale:       a.rig.EyeScale,
		EyeColor:       EyeColor(st.Mood),
		MouthScale:     a.rig.MouthScale,
		MouthIntensity: a.rig.MouthIntensity,
		Breath:         breathScale(0),
	}
}

// Update advances elapsed time by dt and steps the rig. The damping delta is capped
// at MaxFrameDelta; elapsed time is not.
func (a *Avatar) Update(dt float32) Pose {
	st := a.source.GetState()

	a.mu.Lock()
	defer a.mu.Unlock()

	if dt < 0 {
		dt = 0
	}
	a.elapsed += dt
	if dt > MaxFrameDelta {
		dt = MaxFrameDelta
	}
	a.rig, a.pose = Step(a.rig, st.Mood, st.Overlay, a.elapsed, dt, a.rng)
	return a.pose
}

// Pose returns the most recent pose
func (a *Avatar) Pose() Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pose
}

// Rig returns the carried rig state
func (a *Avatar) Rig() RigState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rig
}

// Elapsed returns the total animated time in seconds
func (a *Avatar) Elapsed() float32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.elapsed
}

// Run ticks the avatar at fps until ctx is done, handing every pose to sink.
func (a *Avatar) Run(ctx context.Context, fps int, sink func(Pose)) error {
	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			pose := a.Update(dt)
			if sink != nil {
				sink(pose)
			}
		}
	}
}
