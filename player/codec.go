package player

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"voiceorb/stream"
)

// Codec identifies an encoded audio format.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecMP3
	CodecWAV
	CodecVorbis
	CodecFLAC
)

func (c Codec) String() string {
	switch c {
	case CodecMP3:
		return "mp3"
	case CodecWAV:
		return "wav"
	case CodecVorbis:
		return "vorbis"
	case CodecFLAC:
		return "flac"
	default:
		return "unknown"
	}
}

// CodecFor maps a Content-Type to a codec.
func CodecFor(contentType string) Codec {
	switch stream.MediaType(contentType) {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg":
		return CodecMP3
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return CodecWAV
	case "audio/ogg", "audio/vorbis", "audio/x-vorbis+ogg":
		return CodecVorbis
	case "audio/flac", "audio/x-flac":
		return CodecFLAC
	default:
		return CodecUnknown
	}
}

// Streamable reports whether the decoder can start from a prefix of the
// payload. Ogg and FLAC are read as whole payloads.
func (c Codec) Streamable() bool {
	return c == CodecMP3 || c == CodecWAV
}

func (c Codec) sniffLen() int {
	switch c {
	case CodecWAV:
		return 12
	case CodecMP3:
		return 3
	default:
		return 4
	}
}

func (c Codec) sniff(head []byte) bool {
	switch c {
	case CodecMP3:
		if bytes.HasPrefix(head, []byte("ID3")) {
			return true
		}
		return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
	case CodecWAV:
		return bytes.HasPrefix(head, []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE"))
	case CodecVorbis:
		return bytes.HasPrefix(head, []byte("OggS"))
	case CodecFLAC:
		return bytes.HasPrefix(head, []byte("fLaC"))
	default:
		return false
	}
}

// decode opens a decoder over rc.
func decode(c Codec, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch c {
	case CodecMP3:
		return mp3.Decode(rc)
	case CodecWAV:
		return wav.Decode(rc)
	case CodecVorbis:
		return vorbis.Decode(rc)
	case CodecFLAC:
		return flac.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("no decoder for %s", c)
	}
}
