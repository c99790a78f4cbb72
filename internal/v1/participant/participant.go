// Package participant models one user's append-only activity log
// within a single room.
package participant

import (
	"errors"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
)

var (
	// ErrAlreadyStarted is returned by Connect when the tail activity is still open.
	ErrAlreadyStarted = errors.New("participant: already connected")
	// ErrNoActiveActivity is returned by Disconnect/Update when there is no open activity.
	ErrNoActiveActivity = errors.New("participant: no active activity")
)

// Participant is one user's ordered, append-only log of Activities
// within a room. At most one Activity has an open tail.
type Participant struct {
	UserID    string
	Name      string
	AvatarURL string
	GuildID   string
	History   []activity.Activity
}

// New constructs an empty Participant.
func New(userID, name, avatarURL, guildID string) *Participant {
	return &Participant{
		UserID:    userID,
		Name:      name,
		AvatarURL: avatarURL,
		GuildID:   guildID,
	}
}

func (p *Participant) tail() (activity.Activity, bool) {
	if len(p.History) == 0 {
		return activity.Activity{}, false
	}
	return p.History[len(p.History)-1], true
}

// Connect appends a new open Activity. It fails with ErrAlreadyStarted
// if the tail is already open.
func (p *Participant) Connect(now time.Time, flags activity.Flags) error {
	if tail, ok := p.tail(); ok && tail.IsOpen() {
		return ErrAlreadyStarted
	}
	p.History = append(p.History, activity.New(now, flags))
	return nil
}

// Disconnect seals the tail Activity. It fails with ErrNoActiveActivity
// if there is no history or the tail is already sealed.
func (p *Participant) Disconnect(now time.Time) error {
	tail, ok := p.tail()
	if !ok || !tail.IsOpen() {
		return ErrNoActiveActivity
	}
	sealed, err := tail.Seal(now)
	if err != nil {
		return err
	}
	p.History[len(p.History)-1] = sealed
	return nil
}

// Update toggles capability flags while the participant remains
// connected. If flags equal the tail's flags this is a no-op. If
// currently disconnected it fails with ErrNoActiveActivity. Otherwise
// it seals the tail at now and appends a new open, adjacent Activity
// carrying the new flags.
func (p *Participant) Update(now time.Time, flags activity.Flags) error {
	tail, ok := p.tail()
	if !ok || !tail.IsOpen() {
		return ErrNoActiveActivity
	}
	if tail.Flags.Equal(flags) {
		return nil
	}
	if err := p.Disconnect(now); err != nil {
		return err
	}
	return p.Connect(now, flags)
}

// IsConnected reports whether the tail activity is open.
func (p *Participant) IsConnected() bool {
	tail, ok := p.tail()
	return ok && tail.IsOpen()
}

// CumulativeDuration sums the duration of every Activity, treating the
// open tail (if any) as running until now.
func (p *Participant) CumulativeDuration(now time.Time) time.Duration {
	var total time.Duration
	for _, a := range p.History {
		total += a.Duration(now)
	}
	return total
}

// Clone returns a deep copy of the Participant, safe to hand to a
// reader outside the room's lock.
func (p *Participant) Clone() *Participant {
	clone := *p
	clone.History = append([]activity.Activity(nil), p.History...)
	return &clone
}
