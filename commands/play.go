package commands

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voiceorb/playback"
	"voiceorb/player"
	"voiceorb/stream"
)

var playCmd = &cobra.Command{
	Use:   "play <url|file>",
	Short: "Play an audio URL or file through the streaming pipeline",
	Long: `Play an audio URL or a local file exactly as an answer would be played:
streamed when the format allows it, otherwise downloaded first.

Examples:
  voiceorb play https://example.com/answer.mp3
  voiceorb play ./answer.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, player.DeviceSpeaker{})
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fetch, err := fetcherFor(args[0], e.cfg.Backend.Timeout)
		if err != nil {
			return err
		}
		r, err := e.ctrl.Play(ctx, fetch)
		if err != nil {
			return err
		}
		return follow(ctx, cmd.OutOrStdout(), e.ctrl.Events(), r)
	},
}

func fetcherFor(target string, timeout time.Duration) (playback.Fetcher, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return urlFetcher(target, &http.Client{Timeout: timeout}), nil
	}
	if _, err := os.Stat(target); err != nil {
		return nil, err
	}
	return fileFetcher(target), nil
}

func urlFetcher(url string, hc *http.Client) playback.Fetcher {
	return func(ctx context.Context) (*stream.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, stream.Wrap(stream.KindTransportFailure, err)
		}
		return stream.FromHTTP(resp), nil
	}
}

// fileFetcher opens path afresh on every call so a fallback can read it
// again.
func fileFetcher(path string) playback.Fetcher {
	return func(context.Context) (*stream.Response, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return &stream.Response{StatusCode: http.StatusOK, ContentType: contentTypeFor(path), Body: f}, nil
	}
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
}

// contentTypeFor guesses the content type from the file extension.
func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
