package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mgpai22/bilingo/internal/cache"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

type fakeBackend struct {
	mu    sync.Mutex
	texts []string
	fn    func(ctx context.Context, call int, text string) (string, error)
}

func (f *fakeBackend) TranslateText(ctx context.Context, text, _, _ string) (string, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	call := len(f.texts)
	f.mu.Unlock()
	return f.fn(ctx, call, text)
}

func (f *fakeBackend) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// translates each segment of a (possibly batched) text to "zh:<segment>"
func prefixer(ctx context.Context, _ int, text string) (string, error) {
	parts := SplitBatch(text)
	for i := range parts {
		parts[i] = "zh:" + parts[i]
	}
	return JoinBatch(parts), nil
}

func testTrack(texts ...string) subtitle.Track {
	cues := make([]subtitle.Cue, len(texts))
	for i, text := range texts {
		cues[i] = subtitle.Cue{
			Seq:     i + 1,
			Start:   int64(i) * 1000,
			End:     int64(i)*1000 + 900,
			Primary: text,
		}
	}
	return subtitle.Track{VideoID: "vid", LangPrimary: "en", Cues: cues}
}

func fastOptions(mode Mode) EngineOptions {
	return EngineOptions{
		Mode:  mode,
		Retry: RetryPolicy{MaxAttempts: 3, Base: time.Millisecond, Factor: 2},
		Pacer: NewPacer(0),
	}
}

func TestEnginePerCueKeepsOrderUnderConcurrency(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		// later calls return sooner so completion order differs from input order
		time.Sleep(time.Duration(10-call%10) * time.Millisecond)
		return "zh:" + text, nil
	}}
	opts := fastOptions(ModePerCue)
	opts.Concurrency = 4
	engine := NewEngine(backend, opts)

	track := testTrack("a", "b", "c", "d", "e", "f", "g", "h")
	result, err := engine.Translate(context.Background(), track, "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	if err := subtitle.CheckAligned("translate", track, result.Track); err != nil {
		t.Fatalf("alignment broken: %v", err)
	}
	for i, cue := range result.Track.Cues {
		if cue.Primary != track.Cues[i].Primary {
			t.Errorf("cue %d primary changed to %q", i, cue.Primary)
		}
		if cue.Secondary != "zh:"+track.Cues[i].Primary {
			t.Errorf("cue %d secondary = %q", i, cue.Secondary)
		}
	}
	if result.Calls != 8 || result.Degraded != 0 || result.Cancelled {
		t.Errorf("unexpected result counters: %+v", result)
	}
	if result.Track.LangSecondary != "zh-TW" {
		t.Errorf("LangSecondary = %q", result.Track.LangSecondary)
	}
}

func TestEngineBatchJoinsWithSentinel(t *testing.T) {
	backend := &fakeBackend{fn: prefixer}
	engine := NewEngine(backend, fastOptions(ModeBatch))

	track := testTrack("one", "two", "three", "four", "five", "six", "seven")
	result, err := engine.Translate(context.Background(), track, "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	got := backend.received()
	if len(got) != 2 {
		t.Fatalf("expected 2 batch calls, got %d: %q", len(got), got)
	}
	if got[0] != "one ||| two ||| three ||| four ||| five" {
		t.Errorf("unexpected first batch %q", got[0])
	}
	if got[1] != "six ||| seven" {
		t.Errorf("unexpected second batch %q", got[1])
	}
	for i, cue := range result.Track.Cues {
		if cue.Secondary != "zh:"+track.Cues[i].Primary {
			t.Errorf("cue %d secondary = %q", i, cue.Secondary)
		}
	}
}

func TestEngineBatchMismatchFallsBackPerCue(t *testing.T) {
	translations := map[string]string{"Hello.": "你好。", "World.": "世界。"}
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		if strings.Contains(text, "|||") {
			return "你好。", nil
		}
		return translations[text], nil
	}}
	opts := fastOptions(ModeBatch)
	opts.BatchSize = 2
	engine := NewEngine(backend, opts)

	track := testTrack("Hello.", "World.")
	result, err := engine.Translate(context.Background(), track, "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	if result.Track.Len() != 2 {
		t.Fatalf("cue lost: %d cues", result.Track.Len())
	}
	if result.Track.Cues[0].Secondary != "你好。" || result.Track.Cues[1].Secondary != "世界。" {
		t.Errorf("unexpected translations: %+v", result.Track.Cues)
	}
	if result.Calls != 3 || result.Degraded != 0 {
		t.Errorf("expected 1 batch + 2 per-cue calls and no degradation, got %+v", result)
	}
}

func TestEngineRetriesTransientErrors(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		if call < 3 {
			return "", failure.Wrap(failure.ErrTransient, "translate", "fake", "429 too many requests", nil)
		}
		return "好", nil
	}}
	engine := NewEngine(backend, fastOptions(ModePerCue))

	result, err := engine.Translate(context.Background(), testTrack("good"), "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if result.Calls != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Calls)
	}
	if cue := result.Track.Cues[0]; cue.Degraded || cue.Secondary != "好" {
		t.Errorf("unexpected cue %+v", cue)
	}
}

func TestEngineDegradesWithoutAborting(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		switch text {
		case "broken":
			return "", errors.New("invalid request")
		case "flaky":
			return "", fmt.Errorf("503 service unavailable")
		case "blank":
			return "   ", nil
		}
		return "zh:" + text, nil
	}}
	engine := NewEngine(backend, fastOptions(ModePerCue))

	track := testTrack("ok", "broken", "flaky", "blank", "fine")
	result, err := engine.Translate(context.Background(), track, "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	if result.Degraded != 3 {
		t.Errorf("expected 3 degraded cues, got %d", result.Degraded)
	}
	for _, idx := range []int{1, 2, 3} {
		cue := result.Track.Cues[idx]
		if !cue.Degraded || cue.Secondary != cue.Primary {
			t.Errorf("cue %d should fall back to source text: %+v", idx, cue)
		}
	}
	if result.Track.Cues[4].Secondary != "zh:fine" {
		t.Errorf("run did not continue past failures: %+v", result.Track.Cues[4])
	}
	// 1 (ok) + 1 (broken, not retried) + 3 (flaky) + 1 (blank) + 1 (fine)
	if result.Calls != 7 {
		t.Errorf("expected 7 calls, got %d", result.Calls)
	}
}

func TestEngineCancelBetweenCues(t *testing.T) {
	flag := &CancelFlag{}
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		if call == 3 {
			flag.Cancel()
		}
		return "zh:" + text, nil
	}}
	engine := NewEngine(backend, fastOptions(ModePerCue))

	track := testTrack("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")
	result, err := engine.Translate(context.Background(), track, "zh-TW", flag)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	if !result.Cancelled {
		t.Fatal("expected cancelled result")
	}
	if result.Track.Len() != 10 {
		t.Fatalf("partial track must stay aligned, got %d cues", result.Track.Len())
	}
	for i, cue := range result.Track.Cues {
		translated := cue.Secondary != ""
		if translated != (i < 3) {
			t.Errorf("cue %d translated=%v", i, translated)
		}
	}
	if result.Calls != 3 {
		t.Errorf("expected 3 calls, got %d", result.Calls)
	}
}

func TestEngineRunDeadlineDegradesRemaining(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	opts := fastOptions(ModePerCue)
	opts.RunTimeout = 20 * time.Millisecond
	opts.CallTimeout = time.Second
	engine := NewEngine(backend, opts)

	result, err := engine.Translate(context.Background(), testTrack("a", "b", "c"), "zh-TW", nil)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if result.Cancelled {
		t.Error("deadline is not a cancel")
	}
	if result.Degraded != 3 {
		t.Errorf("expected all cues degraded, got %d", result.Degraded)
	}
}

func TestEngineUsesCache(t *testing.T) {
	backend := &fakeBackend{fn: prefixer}
	opts := fastOptions(ModeBatch)
	opts.Cache = cache.NewMemory(0, 0)
	engine := NewEngine(backend, opts)
	track := testTrack("x", "y", "z")

	first, _ := engine.Translate(context.Background(), track, "zh-TW", nil)
	second, _ := engine.Translate(context.Background(), track, "zh-TW", nil)

	if first.Calls != 1 || first.CacheHits != 0 {
		t.Errorf("unexpected first run %+v", first)
	}
	if second.Calls != 0 || second.CacheHits != 3 {
		t.Errorf("unexpected second run %+v", second)
	}
	for i := range track.Cues {
		if first.Track.Cues[i].Secondary != second.Track.Cues[i].Secondary {
			t.Errorf("cached translation differs at %d", i)
		}
	}
}

func TestEngineDegradedNotCached(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, text string) (string, error) {
		return "", errors.New("bad request")
	}}
	opts := fastOptions(ModePerCue)
	mem := cache.NewMemory(0, 0)
	opts.Cache = mem
	engine := NewEngine(backend, opts)

	if _, err := engine.Translate(context.Background(), testTrack("a"), "zh-TW", nil); err != nil {
		t.Fatal(err)
	}
	if mem.Len() != 0 {
		t.Errorf("degraded result was cached")
	}
}

func TestEngineDetectsSourceLanguage(t *testing.T) {
	engine := NewEngine(EchoBackend{}, fastOptions(ModePerCue))
	track := testTrack(
		"Good morning everyone, and welcome back to our English lesson.",
		"Today we are going to practice the present perfect tense.",
	)
	track.LangPrimary = ""

	result, err := engine.Translate(context.Background(), track, "zh-TW", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Track.LangPrimary != "en" {
		t.Errorf("detected %q, want en", result.Track.LangPrimary)
	}
}

func TestEngineRejectsInvalidTarget(t *testing.T) {
	engine := NewEngine(EchoBackend{}, fastOptions(ModePerCue))
	_, err := engine.Translate(context.Background(), testTrack("a"), "", nil)
	if !errors.Is(err, failure.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestNewEngineDefaultsToPacedCalls(t *testing.T) {
	engine := NewEngine(&fakeBackend{fn: prefixer}, EngineOptions{})
	if engine.opts.Pacer == nil {
		t.Fatal("expected a default pacer")
	}
	if got, want := engine.opts.Pacer.limiter.Limit(), rate.Every(DefaultDelay); got != want {
		t.Errorf("default pacer limit = %v, want %v", got, want)
	}

	shared := NewPacer(0)
	engine = NewEngine(&fakeBackend{fn: prefixer}, EngineOptions{Pacer: shared})
	if engine.opts.Pacer != shared {
		t.Error("an explicit pacer must be kept")
	}
}

func TestEngineFlattensMultiLineReplies(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		reply func(text string) string
	}{
		{"per cue", ModePerCue, func(string) string { return "你好。\n\n世界。" }},
		{"batch", ModeBatch, func(text string) string {
			parts := SplitBatch(text)
			for i := range parts {
				parts[i] = "你好。\n\n世界。"
			}
			return strings.Join(parts, "\n|||\n")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{fn: func(ctx context.Context, _ int, text string) (string, error) {
				return tt.reply(text), nil
			}}
			engine := NewEngine(backend, fastOptions(tt.mode))

			result, err := engine.Translate(context.Background(), testTrack("Hello. World.", "Hi. Everyone."), "zh-TW", nil)
			if err != nil {
				t.Fatalf("Translate returned error: %v", err)
			}
			if result.Degraded != 0 {
				t.Errorf("degraded = %d, want 0", result.Degraded)
			}
			for i, cue := range result.Track.Cues {
				if cue.Secondary != "你好。 世界。" {
					t.Errorf("cue %d secondary = %q", i, cue.Secondary)
				}
			}

			srt := subtitle.FormatSRTString(result.Track, subtitle.LayoutBilingual)
			cues, warnings, err := subtitle.ParseSRT(strings.NewReader(srt), subtitle.ParseOptions{Bilingual: true})
			if err != nil || len(warnings) != 0 {
				t.Fatalf("bilingual output did not parse back: %v %v\n%s", err, warnings, srt)
			}
			if len(cues) != 2 || cues[1].Secondary != "你好。 世界。" {
				t.Errorf("round trip = %+v", cues)
			}
		})
	}
}

func TestEngineSharedPacerSpacesCalls(t *testing.T) {
	pacer := NewPacer(30 * time.Millisecond)
	backend := &fakeBackend{fn: prefixer}

	opts := fastOptions(ModePerCue)
	opts.Pacer = pacer
	a := NewEngine(backend, opts)
	b := NewEngine(backend, opts)

	start := time.Now()
	var wg sync.WaitGroup
	for _, engine := range []*Engine{a, b} {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			_, _ = e.Translate(context.Background(), testTrack("p", "q"), "zh-TW", nil)
		}(engine)
	}
	wg.Wait()

	// four calls through one pacer need at least three intervals
	if elapsed := time.Since(start); elapsed < 85*time.Millisecond {
		t.Errorf("calls were not paced globally: %v", elapsed)
	}
}
