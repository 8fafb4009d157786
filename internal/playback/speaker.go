package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
)

// DefaultSampleRate is the rate the speaker is opened at. Clips at other
// rates are resampled.
const DefaultSampleRate beep.SampleRate = 44100

// SpeakerPlayer decodes mp3 clips in process and plays them on the
// default output device. The device is opened on the first clip.
type SpeakerPlayer struct {
	SampleRate beep.SampleRate

	mu     sync.Mutex
	opened bool
}

// NewSpeakerPlayer returns a player at DefaultSampleRate.
func NewSpeakerPlayer() *SpeakerPlayer {
	return &SpeakerPlayer{SampleRate: DefaultSampleRate}
}

// Play implements Player. Cancelling ctx silences the speaker.
func (p *SpeakerPlayer) Play(ctx context.Context, clip []byte) error {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(clip)))
	if err != nil {
		return fmt.Errorf("decode clip: %w", err)
	}
	defer streamer.Close()

	if err := p.open(); err != nil {
		return err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.SampleRate {
		s = beep.Resample(4, format.SampleRate, p.SampleRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (p *SpeakerPlayer) open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return nil
	}
	if err := speaker.Init(p.SampleRate, p.SampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	p.opened = true
	return nil
}
