package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voiceorb/playback"
	"voiceorb/player"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and play the spoken answer",
	Long: `Ask one question on the voice endpoint, play the answer through the
same streaming pipeline as the chat and print each status change.

Example:
  voiceorb ask "Tell me about your last project"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, player.DeviceSpeaker{})
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		r, err := e.ctrl.Play(ctx, e.client.Voice(strings.Join(args, " ")))
		if err != nil {
			return err
		}
		return follow(ctx, cmd.OutOrStdout(), e.ctrl.Events(), r)
	},
}

// followGrace bounds the wait for the last event once the reply is done.
const followGrace = 500 * time.Millisecond

// follow prints the reply's status changes until it ends. Running the
// command is the user's gesture, so a blocked start is toggled right away.
func follow(ctx context.Context, w io.Writer, events <-chan playback.Event, r *playback.Reply) error {
	ended := make(map[string]bool)
	done := r.Done()
	var grace <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-done:
			final := r.Session()
			if ended[final.ID()] {
				return outcome(final)
			}
			done = nil
			grace = time.After(followGrace)

		case <-grace:
			return outcome(r.Session())

		case ev, ok := <-events:
			if !ok {
				return outcome(r.Session())
			}
			if !r.Owns(ev.Session) {
				continue
			}
			fmt.Fprintf(w, "%-8s %s\n", ev.Origin, ev.Text)
			if ev.To == playback.AutoplayBlocked && !ev.Notice() {
				// A failed start ends the session Errored, which is printed.
				go func() { _ = r.Toggle(ctx) }()
			}
			if ev.To.Terminal() {
				ended[ev.Session] = true
				if done == nil && ev.Session == r.Session().ID() {
					return outcome(r.Session())
				}
			}
		}
	}
}

func outcome(s *playback.Session) error {
	if s.Failed() {
		return errors.New(s.StatusText())
	}
	return nil
}
