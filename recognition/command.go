package recognition

import (
	"bufio"
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

const interimPrefix = "partial:"

// CommandRecognizer runs an external recognition process and reads segments
// from its stdout, one per line. Lines prefixed with "partial:" are interim;
// all other non-empty lines are final segments. This mirrors how local
// whisper-style tooling is typically driven.
type CommandRecognizer struct {
	Path string
	Args []string
}

func (r *CommandRecognizer) Listen(ctx context.Context) (<-chan Segment, error) {
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	segments := make(chan Segment)
	go func() {
		defer close(segments)
		// Exit status is irrelevant here: the process is killed on capture
		// stop and the overlay is advisory either way.
		defer func() {
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				slog.Debug("Recognition command exited", "error", err)
			}
		}()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			segment := Segment{Text: line, Final: true}
			if rest, ok := strings.CutPrefix(line, interimPrefix); ok {
				segment = Segment{Text: strings.TrimSpace(rest), Final: false}
			}
			select {
			case segments <- segment:
			case <-ctx.Done():
				return
			}
		}
	}()

	return segments, nil
}
