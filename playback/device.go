package playback

import (
	"context"

	"voiceorb/player"
)

// Device is the physical output as the controller sees it.
type Device interface {
	// Acquire returns the exclusive binding, or an error while another
	// owner holds it.
	Acquire(owner string) (Binding, error)
	// NoteGesture records a user gesture for the autoplay policy.
	NoteGesture()
	// CanStream reports whether contentType plays before it is complete.
	CanStream(contentType string) bool
}

// Binding is one owner's exclusive hold on the Device.
type Binding interface {
	Load(ctx context.Context, buf *player.Buffer) error
	Loaded() bool
	Play() error
	Pause()
	Finished() <-chan struct{}
	Samples(n int) []float64
	Release()
}

// FromOutput adapts a player.Output.
func FromOutput(out *player.Output) Device {
	return outputDevice{out}
}

type outputDevice struct {
	out *player.Output
}

func (d outputDevice) Acquire(owner string) (Binding, error) {
	h, err := d.out.Acquire(owner)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (d outputDevice) NoteGesture() { d.out.NoteGesture() }

func (d outputDevice) CanStream(contentType string) bool {
	return d.out.CanStream(contentType)
}
