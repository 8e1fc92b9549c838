package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

const (
	timeoutFactor  = 4
	minimumTimeout = 60 * time.Second
)

// Prober reports the duration of a media file.
type Prober func(ctx context.Context, path string) (time.Duration, error)

// Timeout is the wall-clock budget for transcribing audio of the given length.
func Timeout(duration time.Duration) time.Duration {
	return max(timeoutFactor*duration, minimumTimeout)
}

// CheckInput rejects missing, unreadable, empty or zero-length media and
// returns its duration.
func CheckInput(ctx context.Context, path string, probe Prober) (time.Duration, error) {
	if path == "" {
		return 0, failure.Input(stage, "audio path is required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, failure.Input(stage, "audio file not found: "+path, err)
	}
	if info.IsDir() {
		return 0, failure.Input(stage, "audio path is a directory: "+path, nil)
	}
	if info.Size() == 0 {
		return 0, failure.Input(stage, "audio file is empty: "+path, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, failure.Input(stage, "audio file is unreadable: "+path, err)
	}
	_ = f.Close()

	d, err := probe(ctx, path)
	if err != nil {
		return 0, failure.Input(stage, "cannot read media duration: "+path, err)
	}
	if d <= 0 {
		return 0, failure.Input(stage, "audio has zero duration: "+path, nil)
	}
	return d, nil
}

type timed struct {
	inner Transcriber
	probe Prober
}

// WithTimeout validates the input and bounds each call by Timeout of the
// probed duration.
func WithTimeout(t Transcriber, probe Prober) Transcriber {
	return timed{inner: t, probe: probe}
}

func (t timed) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	d, err := CheckInput(ctx, req.AudioPath, t.probe)
	if err != nil {
		return subtitle.Track{}, err
	}

	limit := Timeout(d)
	callCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	track, err := t.inner.Transcribe(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return subtitle.Track{}, transcribeError("timeout",
				fmt.Sprintf("gave up after %s for %s of audio", limit, d.Round(time.Second)), err)
		}
		return subtitle.Track{}, err
	}
	return track, nil
}

// one decoding at a time per process
var backendSlot = make(chan struct{}, 1)

type serialized struct {
	inner Transcriber
}

// Serialized makes t share a process-wide lock with every other serialized
// transcriber. Waiting for the lock honours ctx.
func Serialized(t Transcriber) Transcriber {
	return serialized{inner: t}
}

func (s serialized) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	select {
	case backendSlot <- struct{}{}:
	case <-ctx.Done():
		return subtitle.Track{}, ctx.Err()
	}
	defer func() { <-backendSlot }()
	return s.inner.Transcribe(ctx, req)
}
