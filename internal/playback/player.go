package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// FilePlaceholder in an ExecPlayer command is replaced by the clip path.
const FilePlaceholder = "{file}"

// DefaultCommand plays an mp3 clip with ffplay and exits when done.
var DefaultCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", FilePlaceholder}

// ExecPlayer plays clips through an external command. The clip is written
// to a temporary file whose path replaces FilePlaceholder in Command (or
// is appended when there is no placeholder).
type ExecPlayer struct {
	Command []string
	Dir     string // temp dir for clips; os.TempDir() when empty
}

// NewExecPlayer returns a player for command, falling back to DefaultCommand.
func NewExecPlayer(command []string, dir string) *ExecPlayer {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ExecPlayer{Command: command, Dir: dir}
}

// Play implements Player.
func (p *ExecPlayer) Play(ctx context.Context, clip []byte) error {
	if len(p.Command) == 0 {
		return errors.New("no player command configured")
	}

	f, err := os.CreateTemp(p.Dir, "clip-*.mp3")
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(clip); err != nil {
		f.Close()
		return fmt.Errorf("write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close clip: %w", err)
	}

	args := expandArgs(p.Command[1:], f.Name())
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", p.Command[0], err, bytes.TrimSpace(out))
	}
	return nil
}

func expandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, a := range args {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

// Discard is a muted player; every clip completes immediately.
type Discard struct{}

// Play implements Player.
func (Discard) Play(ctx context.Context, _ []byte) error {
	return ctx.Err()
}
