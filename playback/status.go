// Package playback drives audio sessions through their lifecycle: it owns
// the single output on behalf of one session at a time, feeds streamed or
// whole-payload replies into playable buffers and reports every status
// change as an event.
package playback

import "voiceorb/i18n"

// Status is the lifecycle state of a Session.
type Status int

const (
	Idle Status = iota
	Connecting
	Buffering
	AutoplayBlocked
	Playing
	Paused
	Completed
	Errored
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Buffering:
		return "Buffering"
	case AutoplayBlocked:
		return "AutoplayBlocked"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Completed:
		return "Completed"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == Completed || s == Errored
}

var edges = map[Status][]Status{
	Idle:            {Connecting},
	Connecting:      {Buffering},
	Buffering:       {Playing, AutoplayBlocked},
	AutoplayBlocked: {Playing},
	Playing:         {Paused},
	Paused:          {Playing},
}

// CanTransition reports whether from -> to is an edge of the lifecycle
// graph. Every non-terminal status may end in Completed or Errored.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Origin tells how a session's audio arrived.
type Origin int

const (
	Streamed Origin = iota
	Buffered
)

func (o Origin) String() string {
	if o == Buffered {
		return "buffered"
	}
	return "streamed"
}

func statusKey(s Status, partial bool) i18n.Key {
	switch s {
	case Connecting:
		return i18n.Connecting
	case Buffering:
		return i18n.Buffering
	case AutoplayBlocked:
		return i18n.TapToPlay
	case Playing:
		return i18n.Playing
	case Paused:
		if partial {
			return i18n.StreamEndedEarly
		}
		return i18n.Paused
	case Completed:
		if partial {
			return i18n.StreamEndedEarly
		}
		return i18n.Complete
	default:
		return i18n.Idle
	}
}
