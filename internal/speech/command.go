package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// CommandSynthesizer runs a local espeak-style TTS program that writes WAV
// audio to the file given with -w.
type CommandSynthesizer struct {
	command string
	voice   string
}

// NewCommandSynthesizer returns a synthesizer running command
// ("espeak-ng" when empty) with an optional voice.
func NewCommandSynthesizer(command, voice string) *CommandSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandSynthesizer{command: command, voice: voice}
}

func (c *CommandSynthesizer) Format() string { return "wav" }

func (c *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "frontdesk-tts-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech.wav")
	args := []string{"-w", out}
	if c.voice != "" {
		args = append(args, "-v", c.voice)
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, c.command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("running %s: %w (output: %s)", c.command, err, output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading synthesized audio: %w", err)
	}
	return data, nil
}
