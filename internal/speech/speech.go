// Package speech renders response text into audio files for callers.
package speech

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Nop.
var ErrDisabled = errors.New("speech synthesis disabled")

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// Format is the file extension of the produced audio, without the dot.
	Format() string
}

// Nop never produces audio.
type Nop struct{}

func (Nop) Synthesize(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

func (Nop) Format() string { return "mp3" }
