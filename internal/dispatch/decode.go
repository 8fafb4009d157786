// Package dispatch turns raw stream frames into transcript segments and
// status notices.
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/VlasiukRV/realtime-transcription/internal/stream"
)

// Kind classifies a decoded frame.
type Kind int

const (
	Notice Kind = iota
	Transcript
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Notice:
		return "notice"
	case Transcript:
		return "transcript"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// Decoded is the classification of one frame.
type Decoded struct {
	Kind  Kind
	Text  string       // status text for Notice and Malformed
	Frame stream.Frame // set for Transcript
	Err   error        // set for Malformed
}

// Decode classifies a raw frame.
func Decode(data []byte) Decoded {
	text := string(data)
	if strings.HasPrefix(text, stream.ServicePrefix) {
		return Decoded{
			Kind: Notice,
			Text: strings.TrimSpace(strings.TrimPrefix(text, stream.ServicePrefix)),
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return malformed(text, fmt.Errorf("frame is not a JSON object"))
	}

	var f stream.Frame
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return malformed(text, fmt.Errorf("decode frame: %w", err))
	}
	if f.TranslatedText == "" {
		// A record without a translation is a status update, shown as sent.
		return Decoded{Kind: Notice, Text: string(trimmed)}
	}
	return Decoded{Kind: Transcript, Frame: f}
}

func malformed(text string, err error) Decoded {
	return Decoded{Kind: Malformed, Text: strings.TrimSpace(text), Err: err}
}
