package dispatch

import (
	"encoding/base64"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VlasiukRV/realtime-transcription/internal/segment"
)

// Enqueuer accepts segments for playback.
type Enqueuer interface {
	Enqueue(seg *segment.Segment) tea.Cmd
}

// Listener is told about status line changes and new segments.
type Listener interface {
	StatusChanged(status string)
	SegmentAdded(seg *segment.Segment)
}

// audioMsg carries the result of decoding a segment's clip.
type audioMsg struct {
	epoch uint64
	seg   *segment.Segment
	audio []byte
	err   error
}

// Dispatcher implements stream.Handler. It owns the append-only segment
// list and the connection status line.
type Dispatcher struct {
	queue    Enqueuer
	logger   *zap.SugaredLogger
	listener Listener
	now      func() time.Time

	segments []*segment.Segment
	seq      int
	epoch    uint64 // bumped by Clear and DropPendingAudio
	paused   bool
	status   string
}

// New creates a dispatcher feeding queue.
func New(queue Enqueuer, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		logger: logger,
		now:    time.Now,
		status: "Disconnected",
	}
}

// SetListener registers l for status and segment events.
func (d *Dispatcher) SetListener(l Listener) { d.listener = l }

// Segments returns the segments received since the last Clear, oldest first.
func (d *Dispatcher) Segments() []*segment.Segment { return d.segments }

// Status returns the current status line.
func (d *Dispatcher) Status() string { return d.status }

// Paused reports whether incoming transcript frames are dropped.
func (d *Dispatcher) Paused() bool { return d.paused }

// SetPaused drops transcript frames while p is true.
func (d *Dispatcher) SetPaused(p bool) {
	d.paused = p
	d.logger.Infow("transcript paused", "paused", p)
}

// Clear empties the segment list and drops pending audio.
func (d *Dispatcher) Clear() {
	d.segments = nil
	d.DropPendingAudio()
}

// DropPendingAudio makes clips still being decoded reach the queue
// without audio, so their ordinals are filled but nothing plays.
func (d *Dispatcher) DropPendingAudio() {
	d.epoch++
}

// SetStatus replaces the status line.
func (d *Dispatcher) SetStatus(s string) {
	d.status = s
	if d.listener != nil {
		d.listener.StatusChanged(s)
	}
}

// OnOpen implements stream.Handler.
func (d *Dispatcher) OnOpen(lang string) tea.Cmd {
	d.SetStatus(fmt.Sprintf("Connected: %s", lang))
	return nil
}

// OnClose implements stream.Handler.
func (d *Dispatcher) OnClose(deliberate bool) tea.Cmd {
	if !deliberate {
		d.SetStatus("Disconnected")
	}
	return nil
}

// OnError implements stream.Handler.
func (d *Dispatcher) OnError(err error) tea.Cmd {
	d.SetStatus(fmt.Sprintf("Error: %v", err))
	return nil
}

// OnMessage implements stream.Handler.
func (d *Dispatcher) OnMessage(frame []byte) tea.Cmd {
	dec := Decode(frame)
	switch dec.Kind {
	case Notice:
		d.SetStatus(dec.Text)
	case Malformed:
		d.logger.Warnw("undecodable frame", "error", dec.Err, "bytes", len(frame))
		if dec.Text != "" {
			d.SetStatus(dec.Text)
		}
	case Transcript:
		if d.paused {
			d.logger.Debugw("paused, dropping segment")
			return nil
		}
		return d.add(dec)
	}
	return nil
}

// Update handles clip decode results.
func (d *Dispatcher) Update(msg tea.Msg) tea.Cmd {
	am, ok := msg.(audioMsg)
	if !ok {
		return nil
	}
	switch {
	case am.err != nil:
		d.logger.Warnw("audio decode failed", "seq", am.seg.Seq, "error", am.err)
	case am.epoch != d.epoch:
		d.logger.Debugw("dropping audio for skipped segment", "seq", am.seg.Seq)
	default:
		am.seg.Audio = am.audio
	}
	return d.queue.Enqueue(am.seg)
}

func (d *Dispatcher) add(dec Decoded) tea.Cmd {
	seg := &segment.Segment{
		ID:             uuid.NewString(),
		Seq:            d.seq,
		OriginalText:   dec.Frame.OriginalText,
		TranslatedText: dec.Frame.TranslatedText,
		State:          segment.Pending,
		ReceivedAt:     d.now(),
	}
	d.seq++
	d.segments = append(d.segments, seg)
	if d.listener != nil {
		d.listener.SegmentAdded(seg)
	}

	content := dec.Frame.AudioContent
	if content == "" {
		return d.queue.Enqueue(seg)
	}
	epoch := d.epoch
	return func() tea.Msg {
		audio, err := base64.StdEncoding.DecodeString(content)
		if err == nil && len(audio) == 0 {
			err = fmt.Errorf("empty audio clip")
		}
		return audioMsg{epoch: epoch, seg: seg, audio: audio, err: err}
	}
}
