// Package playback plays segment audio clips one at a time in arrival order.
package playback

import (
	"context"
	"errors"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/VlasiukRV/realtime-transcription/internal/segment"
)

// Player plays one encoded clip. Play blocks until the clip finished or
// ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip []byte) error
}

// Config tunes how long the queue waits for a missing segment.
type Config struct {
	PollInterval time.Duration
	PollAttempts int
}

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollAttempts = 20
)

type (
	clipDoneMsg struct {
		token uint64
		seq   int
		err   error
	}
	pollMsg struct {
		token uint64
	}
)

// Queue sequences clip playback by segment ordinal. Segments may be
// enqueued out of order; the head never moves past a missing ordinal
// until it arrives or the poll budget runs out. Not safe for concurrent
// use; call it from the bubbletea Update loop.
type Queue struct {
	player Player
	cfg    Config
	logger *zap.SugaredLogger
	notify func(*segment.Segment)
	onGap  func(seq int)

	slots   map[int]*segment.Segment
	next    int // ordinal of the head
	maxSeq  int // highest ordinal enqueued
	playing *segment.Segment
	cancel  context.CancelFunc
	token   uint64

	polling  bool
	attempts int
	gaveUp   int
}

// New creates an idle queue.
func New(player Player, cfg Config, logger *zap.SugaredLogger) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultPollAttempts
	}
	return &Queue{
		player: player,
		cfg:    cfg,
		logger: logger,
		slots:  make(map[int]*segment.Segment),
		maxSeq: -1,
	}
}

// OnChange registers fn to be called after every playback state change.
func (q *Queue) OnChange(fn func(*segment.Segment)) { q.notify = fn }

// OnGiveUp registers fn to be called when the queue stops waiting for a
// missing ordinal and skips it.
func (q *Queue) OnGiveUp(fn func(seq int)) { q.onGap = fn }

// Playing returns the segment whose clip is playing, or nil.
func (q *Queue) Playing() *segment.Segment { return q.playing }

// Len returns the number of segments waiting behind the head.
func (q *Queue) Len() int { return len(q.slots) }

// Next returns the ordinal the queue will play next.
func (q *Queue) Next() int { return q.next }

// GaveUp returns how many ordinals were skipped because they never arrived.
func (q *Queue) GaveUp() int { return q.gaveUp }

// Waiting reports whether the queue is polling for a missing ordinal.
func (q *Queue) Waiting() bool { return q.polling }

// Enqueue puts seg into its ordinal slot and starts playback if idle.
func (q *Queue) Enqueue(seg *segment.Segment) tea.Cmd {
	if seg.Seq < q.next {
		q.logger.Debugw("segment arrived behind queue head", "seq", seg.Seq, "next", q.next)
		q.setState(seg, segment.Played)
		return nil
	}
	if _, dup := q.slots[seg.Seq]; dup || (q.playing != nil && q.playing.Seq == seg.Seq) {
		q.logger.Warnw("duplicate segment ordinal", "seq", seg.Seq)
		return nil
	}

	if seg.HasAudio() {
		q.setState(seg, segment.Queued)
	}
	q.slots[seg.Seq] = seg
	if seg.Seq > q.maxSeq {
		q.maxSeq = seg.Seq
	}

	if q.playing != nil {
		return nil
	}
	if q.polling {
		if seg.Seq != q.next {
			return nil
		}
		q.stopPoll()
	}
	return q.advance()
}

// SkipAll silences playback: the current clip is cancelled and every
// waiting segment is marked played without being played.
func (q *Queue) SkipAll() {
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if q.playing != nil {
		q.setState(q.playing, segment.Played)
		q.playing = nil
	}

	seqs := make([]int, 0, len(q.slots))
	for seq := range q.slots {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		q.setState(q.slots[seq], segment.Played)
	}
	q.slots = make(map[int]*segment.Segment)

	q.stopPoll()
	q.token++
	if q.maxSeq >= q.next {
		q.next = q.maxSeq + 1
	}
	q.logger.Infow("playback queue cleared", "skipped", len(seqs), "next", q.next)
}

// Update handles clip completion and poll ticks.
func (q *Queue) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {

	case clipDoneMsg:
		if msg.token != q.token || q.playing == nil || q.playing.Seq != msg.seq {
			return nil
		}
		seg := q.playing
		q.playing = nil
		q.cancel = nil
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			q.logger.Warnw("playback failed", "seq", seg.Seq, "id", seg.ID, "error", msg.err)
		}
		q.setState(seg, segment.Played)
		q.next = seg.Seq + 1
		return q.advance()

	case pollMsg:
		if !q.polling || msg.token != q.token {
			return nil
		}
		if _, ok := q.slots[q.next]; ok {
			q.stopPoll()
			return q.advance()
		}
		q.attempts++
		if q.attempts < q.cfg.PollAttempts {
			return q.pollTick(msg.token)
		}
		q.logger.Warnw("gave up waiting for segment", "seq", q.next, "attempts", q.attempts)
		q.stopPoll()
		q.gaveUp++
		if q.onGap != nil {
			q.onGap(q.next)
		}
		q.next++
		return q.advance()
	}
	return nil
}

// advance skips audio-less heads and starts the first clip it finds. It
// returns nil when the queue is idle or already waiting.
func (q *Queue) advance() tea.Cmd {
	for {
		seg, ok := q.slots[q.next]
		if !ok {
			// A later ordinal is present, so the head is late, not absent.
			if q.next < q.maxSeq {
				return q.startPoll()
			}
			return nil
		}
		delete(q.slots, q.next)
		if !seg.HasAudio() {
			q.setState(seg, segment.Played)
			q.next++
			continue
		}
		return q.play(seg)
	}
}

func (q *Queue) play(seg *segment.Segment) tea.Cmd {
	q.token++
	token := q.token
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.playing = seg
	q.setState(seg, segment.Playing)

	player, clip, seq := q.player, seg.Audio, seg.Seq
	q.logger.Debugw("playing clip", "seq", seq, "bytes", len(clip))
	return func() tea.Msg {
		defer cancel()
		return clipDoneMsg{token: token, seq: seq, err: player.Play(ctx, clip)}
	}
}

func (q *Queue) startPoll() tea.Cmd {
	if q.polling {
		return nil
	}
	q.polling = true
	q.attempts = 0
	q.token++
	q.logger.Debugw("waiting for segment", "seq", q.next)
	return q.pollTick(q.token)
}

func (q *Queue) stopPoll() {
	if q.polling {
		q.polling = false
		q.token++
	}
}

func (q *Queue) pollTick(token uint64) tea.Cmd {
	return tea.Tick(q.cfg.PollInterval, func(time.Time) tea.Msg {
		return pollMsg{token: token}
	})
}

func (q *Queue) setState(seg *segment.Segment, s segment.PlaybackState) {
	if seg.State == s {
		return
	}
	seg.State = s
	if q.notify != nil {
		q.notify(seg)
	}
}
