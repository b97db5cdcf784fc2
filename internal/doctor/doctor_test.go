package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/canto/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "wayland")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.EqualFold(v, "wayland") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "commit_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "commit_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "commit_cmd command is available")
}

func TestCheckRecognizerMock(t *testing.T) {
	check := checkRecognizer(config.RecognizerConfig{Backend: "mock"})
	require.True(t, check.Pass)
}

func TestCheckRecognizerGcloudCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	check := checkRecognizer(config.RecognizerConfig{Backend: "gcloud"})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no gcloud credentials")

	missing := checkRecognizer(config.RecognizerConfig{Backend: "gcloud", CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})
	require.False(t, missing.Pass)
	require.Contains(t, missing.Message, "credentials_file unreadable")

	creds := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(creds, []byte("{}"), 0o600))
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", creds)
	fromEnv := checkRecognizer(config.RecognizerConfig{Backend: "gcloud"})
	require.True(t, fromEnv.Pass)
	require.Contains(t, fromEnv.Message, "GOOGLE_APPLICATION_CREDENTIALS")
}

func TestCheckOfflineHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	check := checkOfflineHealth(context.Background(), server.URL+"/")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "ready at")
}

func TestCheckOfflineHealthFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	check := checkOfflineHealth(context.Background(), server.URL)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "503")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunMockBackendSkipsAudioAndChecksCommitCmd(t *testing.T) {
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "fake-commit"), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg := config.Default()
	cfg.Recognizer.Backend = "mock"
	cfg.Sinks.CommitCmd = config.CommandConfig{Raw: "fake-commit", Argv: []string{"fake-commit"}}

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	require.True(t, report.OK(), report.String())

	var sawCommit, sawAudioSkip bool
	for _, check := range report.Checks {
		if check.Name == "fake-commit" {
			sawCommit = true
		}
		if check.Name == "audio.device" && strings.Contains(check.Message, "skipped") {
			sawAudioSkip = true
		}
	}
	require.True(t, sawCommit)
	require.True(t, sawAudioSkip)
}
