// Package segment defines the transcript unit shared by the stream,
// dispatch, playback and UI layers.
package segment

import "time"

// PlaybackState tracks where a segment's audio clip is in the playback queue.
type PlaybackState int

const (
	Pending PlaybackState = iota // no clip attached or not yet queued
	Queued                       // clip attached, waiting for its turn
	Playing                      // clip is the queue head and is playing
	Played                       // finished, failed or skipped
)

func (s PlaybackState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Queued:
		return "queued"
	case Playing:
		return "playing"
	case Played:
		return "played"
	}
	return "unknown"
}

// Segment is one transcript unit received from the streaming endpoint.
// Everything except State is fixed once the segment has been queued.
type Segment struct {
	ID             string
	Seq            int // arrival ordinal, 0-based
	OriginalText   string
	TranslatedText string
	Audio          []byte
	State          PlaybackState
	ReceivedAt     time.Time
}

// HasAudio reports whether a clip is attached.
func (s *Segment) HasAudio() bool {
	return len(s.Audio) > 0
}
