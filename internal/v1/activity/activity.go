// Package activity models one uninterrupted interval of voice-channel
// presence and the capability flags that held for its duration.
package activity

import (
	"errors"
	"time"
)

// ErrAlreadyEnded is returned by End when the activity has already been sealed.
var ErrAlreadyEnded = errors.New("activity: already ended")

// Flags is the fixed capability-flag vector carried by an Activity.
type Flags struct {
	Muted         bool
	Deafened      bool
	SharingScreen bool
}

// Equal reports whether two flag vectors are identical.
func (f Flags) Equal(other Flags) bool {
	return f == other
}

// Activity is one maximal interval during which a participant was
// connected and held a fixed Flags vector. End is the zero time while
// the activity is open.
type Activity struct {
	Start time.Time
	End   time.Time
	Flags Flags
}

// New constructs an open Activity starting at t.
func New(t time.Time, flags Flags) Activity {
	return Activity{Start: t, Flags: flags}
}

// IsOpen reports whether the activity has not yet been sealed.
func (a Activity) IsOpen() bool {
	return a.End.IsZero()
}

// Seal closes the activity at t. It fails with ErrAlreadyEnded if the
// activity was already sealed.
func (a Activity) Seal(t time.Time) (Activity, error) {
	if !a.IsOpen() {
		return a, ErrAlreadyEnded
	}
	a.End = t
	return a, nil
}

// IsFollowing reports whether a began exactly where prev ended, i.e.
// the participant stayed connected continuously across the two
// intervals and only the flags changed.
func (a Activity) IsFollowing(prev Activity) bool {
	return !prev.IsOpen() && prev.End.Equal(a.Start)
}

// Duration returns the interval's length, using now as the end of an
// open activity.
func (a Activity) Duration(now time.Time) time.Duration {
	end := a.End
	if a.IsOpen() {
		end = now
	}
	return end.Sub(a.Start)
}
