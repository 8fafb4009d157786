// Package stream manages the WebSocket connection to the transcription
// server and defines the wire format of the frames it delivers.
package stream

import (
	"fmt"
	"net/url"
	"strings"
)

// ServicePrefix marks plain-text status frames sent by the server.
const ServicePrefix = "Service Message:"

// TranscribePath is the endpoint path template; %s is the language code.
const TranscribePath = "/ws/transcribe/%s"

// Frame is a transcript frame as sent by the server.
type Frame struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	AudioContent   string `json:"audio_content,omitempty"` // base64
}

// Endpoint builds the streaming URL for lang from the server base URL.
// http and https bases are mapped to ws and wss.
func Endpoint(base, lang string) (string, error) {
	if lang == "" {
		return "", fmt.Errorf("endpoint: empty language")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	escapedBase := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + fmt.Sprintf(TranscribePath, lang)
	u.RawPath = escapedBase + fmt.Sprintf(TranscribePath, url.PathEscape(lang))
	u.RawQuery = ""
	return u.String(), nil
}
