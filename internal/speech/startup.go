package speech

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// EnsureReady probes the synthesizer once and reports the result to w.
// A failure is returned but callers may keep running without audio.
func EnsureReady(ctx context.Context, s Synthesizer, w io.Writer) error {
	switch s := s.(type) {
	case Nop:
		fmt.Fprintln(w, "speech: disabled")
		return nil
	case *CommandSynthesizer:
		path, err := exec.LookPath(s.command)
		if err != nil {
			fmt.Fprintf(w, "speech: %s not found\n", s.command)
			return fmt.Errorf("speech command %s: %w", s.command, err)
		}
		fmt.Fprintf(w, "speech: using %s\n", path)
		return nil
	}

	fmt.Fprintln(w, "speech: warming up...")
	warmCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.Synthesize(warmCtx, "ready"); err != nil {
		fmt.Fprintf(w, "speech: warm-up failed: %v\n", err)
		return fmt.Errorf("speech warm-up: %w", err)
	}
	fmt.Fprintln(w, "speech: ready")
	return nil
}
