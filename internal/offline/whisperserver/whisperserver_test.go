package whisperserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rbright/canto/internal/offline"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu        sync.Mutex
	loads     []string
	languages []string
	uploads   [][]byte
	failLoad  bool
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /load", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failLoad {
			http.Error(w, "model not found", http.StatusBadRequest)
			return
		}
		f.loads = append(f.loads, r.FormValue("model"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /inference", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "json", r.FormValue("response_format"))

		f.mu.Lock()
		f.uploads = append(f.uploads, data)
		f.languages = append(f.languages, r.FormValue("language"))
		model := f.loads[len(f.loads)-1]
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]string{"text": " transcribed by " + filepath.Base(model) + "\n"})
	})
	return mux
}

func TestEngineLoadsAndTranscribes(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	engine, err := New(srv.URL+"/", Options{})
	require.NoError(t, err)
	require.NoError(t, engine.Health(context.Background()))

	version, err := engine.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "whisper.cpp", version)

	model, err := engine.Load(context.Background(), "/models/base.bin")
	require.NoError(t, err)

	text, err := model.Transcribe(context.Background(), offline.Audio{Samples: []float32{0, 0.5, -0.5}, SampleRate: 16000})
	require.NoError(t, err)
	require.Equal(t, "transcribed by base.bin", text)

	require.Equal(t, []string{"/models/base.bin"}, fake.loads)
	require.Equal(t, []string{"auto"}, fake.languages)
	upload := fake.uploads[0]
	require.Equal(t, "RIFF", string(upload[:4]))
	require.Len(t, upload, 44+3*2)
}

func TestEngineReloadsWhenContextsShareServer(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	engine, err := New(srv.URL, Options{Language: "en"})
	require.NoError(t, err)

	first, err := engine.Load(context.Background(), "/models/a.bin")
	require.NoError(t, err)
	second, err := engine.Load(context.Background(), "/models/b.bin")
	require.NoError(t, err)

	text, err := first.Transcribe(context.Background(), offline.Audio{Samples: []float32{0.1}, SampleRate: 16000})
	require.NoError(t, err)
	require.Equal(t, "transcribed by a.bin", text)

	text, err = first.Transcribe(context.Background(), offline.Audio{Samples: []float32{0.1}, SampleRate: 16000})
	require.NoError(t, err)
	require.Equal(t, "transcribed by a.bin", text)

	_, err = second.Transcribe(context.Background(), offline.Audio{Samples: []float32{0.1}, SampleRate: 16000})
	require.NoError(t, err)

	require.Equal(t, []string{"/models/a.bin", "/models/b.bin", "/models/a.bin", "/models/b.bin"}, fake.loads)
	require.Equal(t, "en", fake.languages[0])
}

func TestEngineLoadFailureSurfacesServerMessage(t *testing.T) {
	fake := &fakeServer{failLoad: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	engine, err := New(srv.URL, Options{})
	require.NoError(t, err)

	_, err = engine.Load(context.Background(), "/models/missing.bin")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "model not found")
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("  ", Options{})
	require.Error(t, err)
}

func TestEncodeWAVClampsSamples(t *testing.T) {
	data, err := encodeWAV(offline.Audio{Samples: []float32{2, -2}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clamped.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	decoded, err := offline.ReadWAV(path)
	require.NoError(t, err)
	require.Equal(t, 16000, decoded.SampleRate)
	require.InDelta(t, 32767.0/32768, decoded.Samples[0], 1e-6)
	require.InDelta(t, -1, decoded.Samples[1], 1e-6)
}

func TestServiceWithServerEngine(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	engine, err := New(srv.URL, Options{})
	require.NoError(t, err)
	svc, err := offline.Open(engine, offline.Options{Workers: 1})
	require.NoError(t, err)
	defer svc.Close()

	data, err := encodeWAV(offline.Audio{Samples: []float32{0.25, -0.25}, SampleRate: 16000})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	handle, err := svc.InitContext(context.Background(), "/models/tiny.bin")
	require.NoError(t, err)
	text, err := svc.Transcribe(context.Background(), handle, path)
	require.NoError(t, err)
	require.Equal(t, "transcribed by tiny.bin", text)
	require.NoError(t, svc.FreeContext(context.Background(), handle))
}
