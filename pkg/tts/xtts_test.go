package tts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxguide/voxguide/pkg/tts"
)

func testProfile() *tts.Profile {
	return &tts.Profile{
		GPTCondLatent:    [][]float64{{0.1, 0.2}},
		SpeakerEmbedding: []float64{0.3},
	}
}

func newEngineServer(t *testing.T, pcm []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			json.NewEncoder(w).Encode(map[string]string{"device": "cuda"})
		case "/tts_stream":
			var req map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode stream request: %v", err)
			}
			for _, field := range []string{"text", "language", "gpt_cond_latent", "speaker_embedding", "stream_chunk_size"} {
				if _, ok := req[field]; !ok {
					t.Errorf("expected %s in stream request", field)
				}
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pcm)
		case "/clone_speaker":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if _, _, err := r.FormFile("wav_file"); err != nil {
				t.Errorf("expected wav_file field: %v", err)
			}
			json.NewEncoder(w).Encode(testProfile())
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestXTTSStream(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 6000)
	server := newEngineServer(t, pcm)
	defer server.Close()

	engine, err := tts.NewXTTS(tts.WithEngineURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	if engine.Device() != "cuda" {
		t.Errorf("expected device cuda, got %s", engine.Device())
	}

	stream, err := engine.Stream(context.Background(), &tts.SpeechRequest{
		Text:    "hello tour",
		Profile: testProfile(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var got []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("read error: %v", err)
		}
		if chunk == nil {
			break
		}
		got = append(got, chunk...)
	}

	if !bytes.Equal(got, pcm) {
		t.Errorf("expected %d PCM bytes back in order, got %d", len(pcm), len(got))
	}
	if stream.Format().SampleRate != 24000 {
		t.Errorf("expected 24kHz format, got %d", stream.Format().SampleRate)
	}
}

func TestXTTSStreamRequiresProfile(t *testing.T) {
	server := newEngineServer(t, nil)
	defer server.Close()

	engine, err := tts.NewXTTS(tts.WithEngineURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	_, err = engine.Stream(context.Background(), &tts.SpeechRequest{Text: "hello"})
	if !errors.Is(err, tts.ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}
}

func TestXTTSSerializesInference(t *testing.T) {
	server := newEngineServer(t, []byte{1, 2, 3, 4})
	defer server.Close()

	engine, err := tts.NewXTTS(tts.WithEngineURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	first, err := engine.Stream(context.Background(), &tts.SpeechRequest{
		Text:    "first",
		Profile: testProfile(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second inference must wait until the first stream is closed.
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		second, err := engine.Stream(context.Background(), &tts.SpeechRequest{
			Text:    "second",
			Profile: testProfile(),
		})
		if err == nil {
			second.Close()
		}
		close(done)
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second inference started before first stream was closed")
	default:
	}

	first.Close()
	<-done
}

func TestXTTSExtractProfile(t *testing.T) {
	server := newEngineServer(t, nil)
	defer server.Close()

	engine, err := tts.NewXTTS(tts.WithEngineURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	ref := filepath.Join(t.TempDir(), "speaker.wav")
	if err := os.WriteFile(ref, []byte("RIFF fake wav"), 0o644); err != nil {
		t.Fatalf("write reference: %v", err)
	}

	profile, err := engine.ExtractProfile(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profile.GPTCondLatent) != 1 || len(profile.SpeakerEmbedding) != 1 {
		t.Errorf("unexpected profile shape: %+v", profile)
	}
}

func TestXTTSEngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/info" {
			json.NewEncoder(w).Encode(map[string]string{"device": "cpu"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer server.Close()

	engine, err := tts.NewXTTS(tts.WithEngineURL(server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer engine.Close()

	_, err = engine.Stream(context.Background(), &tts.SpeechRequest{
		Text:    "hello",
		Profile: testProfile(),
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Message != "model not loaded" {
		t.Errorf("unexpected message: %s", apiErr.Message)
	}
}

func TestNewXTTSRequiresURL(t *testing.T) {
	_, err := tts.NewXTTS()
	if !errors.Is(err, tts.ErrNoEngineURL) {
		t.Errorf("expected ErrNoEngineURL, got %v", err)
	}
}
