package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"", TierSmall, false},
		{"tiny", TierTiny, false},
		{"Base", TierBase, false},
		{" MEDIUM ", TierMedium, false},
		{"large", TierLarge, false},
		{"huge", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTier(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, failure.ErrInput) {
			t.Errorf("ParseTier(%q) error is not an input error: %v", tt.in, err)
		}
	}
}

func TestFactoryLoadErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		provider Provider
		opts     Options
	}{
		{"missing whisper binary", ProviderWhisper, Options{WhisperBinary: "bilingo-no-such-whisper"}},
		{"openai without key", ProviderOpenAI, Options{}},
		{"gemini without key", ProviderGemini, Options{}},
		{"unknown provider", Provider("deepgram"), Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Factory(ctx, tt.provider, "", tt.opts)
			if !errors.Is(err, ErrLoad) {
				t.Fatalf("expected ErrLoad, got %v", err)
			}
			if failure.Kind(err) != "backend" {
				t.Errorf("load error classified as %q", failure.Kind(err))
			}
		})
	}
}

func TestFactoryHostedProviders(t *testing.T) {
	ctx := context.Background()
	tr, err := Factory(ctx, ProviderOpenAI, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(openai) returned error: %v", err)
	}
	if _, ok := tr.(*OpenAITranscriber); !ok {
		t.Errorf("expected *OpenAITranscriber, got %T", tr)
	}

	tr, err = Factory(ctx, ProviderGemini, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(gemini) returned error: %v", err)
	}
	if _, ok := tr.(*GeminiTranscriber); !ok {
		t.Errorf("expected *GeminiTranscriber, got %T", tr)
	}
}

func TestNewTrack(t *testing.T) {
	req := Request{VideoID: "v1", Language: "EN"}
	track, err := newTrack("test", req, []subtitle.Cue{
		{Start: 0, End: 1000, Primary: " Hello. "},
		{Start: 1000, End: 1500, Primary: "   "},
		{Start: 900, End: 2000, Primary: "World."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if track.VideoID != "v1" || track.LangPrimary != "en" {
		t.Errorf("unexpected metadata %+v", track)
	}
	if track.Len() != 2 || track.Cues[0].Primary != "Hello." || track.Cues[1].Seq != 2 {
		t.Errorf("unexpected cues %+v", track.Cues)
	}
	// overlaps are the normalizer's job
	if track.Cues[1].Start != 900 {
		t.Errorf("raw timing changed: %+v", track.Cues[1])
	}

	_, err = newTrack("test", req, nil)
	if !errors.Is(err, ErrTranscribe) {
		t.Errorf("expected ErrTranscribe for empty transcript, got %v", err)
	}
}

const whisperSRT = `1
00:00:00,000 --> 00:00:02,000
Hello world.

2
00:00:02,000 --> 00:00:04,500
How are you?
`

func TestWhisperTranscriber(t *testing.T) {
	var gotArgs []string
	tr := &WhisperTranscriber{
		binary:  "whisper",
		tempDir: t.TempDir(),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = args
			outDir := args[slices.Index(args, "--output_dir")+1]
			return nil, os.WriteFile(filepath.Join(outDir, "lesson.srt"), []byte(whisperSRT), 0o644)
		},
	}

	track, err := tr.Transcribe(context.Background(), Request{
		AudioPath: "/media/lesson.mp3",
		Language:  "en",
		Tier:      TierMedium,
		VideoID:   "abc",
	})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}

	if track.Len() != 2 || track.Cues[1].End != 4500 || track.Cues[1].Primary != "How are you?" {
		t.Errorf("unexpected track %+v", track)
	}
	if gotArgs[0] != "/media/lesson.mp3" {
		t.Errorf("audio path not first argument: %q", gotArgs)
	}
	for _, pair := range [][2]string{{"--model", "medium"}, {"--language", "en"}, {"--output_format", "srt"}} {
		i := slices.Index(gotArgs, pair[0])
		if i < 0 || gotArgs[i+1] != pair[1] {
			t.Errorf("args %q missing %s %s", gotArgs, pair[0], pair[1])
		}
	}
}

func TestWhisperTranscriberFailure(t *testing.T) {
	tr := &WhisperTranscriber{
		binary:  "whisper",
		tempDir: t.TempDir(),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("loading model\nRuntimeError: out of memory\n"), errors.New("exit status 1")
		},
	}
	_, err := tr.Transcribe(context.Background(), Request{AudioPath: "a.mp3"})
	if !errors.Is(err, ErrTranscribe) || !errors.Is(err, failure.ErrBackend) {
		t.Fatalf("expected transcribe backend error, got %v", err)
	}
}

func fixedProbe(d time.Duration) Prober {
	return func(context.Context, string) (time.Duration, error) { return d, nil }
}

func writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lesson.mp3")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckInput(t *testing.T) {
	ctx := context.Background()
	audioPath := writeAudio(t, "ID3")

	tests := []struct {
		name  string
		path  string
		probe Prober
	}{
		{"empty path", "", fixedProbe(time.Second)},
		{"missing file", filepath.Join(t.TempDir(), "nope.mp3"), fixedProbe(time.Second)},
		{"directory", t.TempDir(), fixedProbe(time.Second)},
		{"empty file", writeAudio(t, ""), fixedProbe(time.Second)},
		{"zero duration", audioPath, fixedProbe(0)},
		{"probe failure", audioPath, func(context.Context, string) (time.Duration, error) {
			return 0, errors.New("invalid data found when processing input")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckInput(ctx, tt.path, tt.probe)
			if !errors.Is(err, failure.ErrInput) {
				t.Fatalf("expected input error, got %v", err)
			}
		})
	}

	d, err := CheckInput(ctx, audioPath, fixedProbe(90*time.Second))
	if err != nil || d != 90*time.Second {
		t.Errorf("CheckInput = %v, %v", d, err)
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{time.Second, 60 * time.Second},
		{15 * time.Second, 60 * time.Second},
		{16 * time.Second, 64 * time.Second},
		{10 * time.Minute, 40 * time.Minute},
	}
	for _, tt := range tests {
		if got := Timeout(tt.in); got != tt.want {
			t.Errorf("Timeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type funcTranscriber func(ctx context.Context, req Request) (subtitle.Track, error)

func (f funcTranscriber) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	return f(ctx, req)
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	audioPath := writeAudio(t, "ID3")
	inner := funcTranscriber(func(ctx context.Context, req Request) (subtitle.Track, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("no deadline on backend context")
		}
		if remaining := time.Until(deadline); remaining < 110*time.Second || remaining > 120*time.Second {
			t.Errorf("deadline %v away, want about 120s", remaining)
		}
		return subtitle.Track{Cues: []subtitle.Cue{{Seq: 1, End: 1000, Primary: "Hi."}}}, nil
	})

	track, err := WithTimeout(inner, fixedProbe(30*time.Second)).Transcribe(
		context.Background(), Request{AudioPath: audioPath},
	)
	if err != nil || track.Len() != 1 {
		t.Fatalf("Transcribe = %+v, %v", track, err)
	}
}

func TestWithTimeoutRejectsBadInputBeforeBackend(t *testing.T) {
	called := false
	inner := funcTranscriber(func(ctx context.Context, req Request) (subtitle.Track, error) {
		called = true
		return subtitle.Track{}, nil
	})
	_, err := WithTimeout(inner, fixedProbe(time.Second)).Transcribe(
		context.Background(), Request{AudioPath: filepath.Join(t.TempDir(), "missing.wav")},
	)
	if !errors.Is(err, failure.ErrInput) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestSerializedRunsOneAtATime(t *testing.T) {
	var active, peak atomic.Int32
	inner := funcTranscriber(func(ctx context.Context, req Request) (subtitle.Track, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return subtitle.Track{}, nil
	})

	a, b := Serialized(inner), Serialized(inner)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(tr Transcriber) {
			defer wg.Done()
			_, _ = tr.Transcribe(context.Background(), Request{})
		}([]Transcriber{a, b}[i%2])
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrency %d, want 1", peak.Load())
	}
}

func TestSerializedHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	blocker := Serialized(funcTranscriber(func(ctx context.Context, req Request) (subtitle.Track, error) {
		close(started)
		<-release
		return subtitle.Track{}, nil
	}))
	go func() { _, _ = blocker.Transcribe(context.Background(), Request{}) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Serialized(funcTranscriber(func(ctx context.Context, req Request) (subtitle.Track, error) {
		t.Error("second transcriber ran while the first held the lock")
		return subtitle.Track{}, nil
	})).Transcribe(ctx, Request{})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
