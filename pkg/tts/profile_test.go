package tts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxguide/voxguide/pkg/tts"
)

func TestProfileCacheExtractsOnce(t *testing.T) {
	mock := tts.NewMock()
	cache := tts.NewProfileCache(mock)
	ctx := context.Background()

	first, err := cache.Get(ctx, "speaker.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Get(ctx, "speaker.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Error("expected the same cached profile on repeat lookups")
	}
	if mock.CallCount("ExtractProfile") != 1 {
		t.Errorf("expected 1 extraction, got %d", mock.CallCount("ExtractProfile"))
	}
}

func TestProfileCacheDistinctKeys(t *testing.T) {
	mock := tts.NewMock()
	cache := tts.NewProfileCache(mock)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "alice.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Get(ctx, "bob.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.CallCount("ExtractProfile") != 2 {
		t.Errorf("expected 2 extractions for 2 keys, got %d", mock.CallCount("ExtractProfile"))
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 cached profiles, got %d", cache.Len())
	}
}

func TestProfileCacheSingleFlight(t *testing.T) {
	mock := tts.NewMock()
	slow := mock.ExtractProfileFunc
	mock.ExtractProfileFunc = func(ctx context.Context, refWAV string) (*tts.Profile, error) {
		time.Sleep(50 * time.Millisecond) // hold the flight open
		return slow(ctx, refWAV)
	}
	cache := tts.NewProfileCache(mock)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), "shared.wav"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := mock.CallCount("ExtractProfile"); got != 1 {
		t.Errorf("expected exactly 1 extraction under concurrency, got %d", got)
	}
}

func TestProfileCacheFailureNotCached(t *testing.T) {
	extractErr := errors.New("unreadable reference audio")
	mock := tts.WithStreamError(extractErr)
	cache := tts.NewProfileCache(mock)
	ctx := context.Background()

	_, err := cache.Get(ctx, "bad.wav")
	if err == nil {
		t.Fatal("expected error")
	}

	var profileErr *tts.ProfileError
	if !errors.As(err, &profileErr) {
		t.Fatalf("expected ProfileError, got %T", err)
	}
	if !errors.Is(err, extractErr) {
		t.Errorf("expected wrapped extraction error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("expected cache not populated after failure")
	}
}

func TestProfileCacheCanonicalKey(t *testing.T) {
	mock := tts.NewMock()
	cache := tts.NewProfileCache(mock)
	ctx := context.Background()

	// Different spellings of the same file share one entry.
	if _, err := cache.Get(ctx, "voices/speaker.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Get(ctx, "voices/../voices/speaker.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.CallCount("ExtractProfile") != 1 {
		t.Errorf("expected 1 extraction for equivalent paths, got %d", mock.CallCount("ExtractProfile"))
	}
}

func TestProfileTransferable(t *testing.T) {
	profile := &tts.Profile{
		GPTCondLatent:    [][]float64{{1, 2}, {3, 4}},
		SpeakerEmbedding: []float64{5, 6},
	}

	out := profile.Transferable()
	if _, ok := out["gpt_cond_latent"]; !ok {
		t.Error("expected gpt_cond_latent field")
	}
	if _, ok := out["speaker_embedding"]; !ok {
		t.Error("expected speaker_embedding field")
	}
}
