// Package doctor runs runtime readiness diagnostics for config, recognizer
// credentials, audio, sinks, and the offline engine.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/canto/internal/audio"
	"github.com/rbright/canto/internal/config"
	"github.com/rbright/canto/internal/offline/whisperserver"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "daemon socket directory is set", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkRecognizer(cfg.Config.Recognizer))

	if cfg.Config.Recognizer.Backend == "mock" {
		checks = append(checks, Check{Name: "audio.device", Pass: true, Message: "skipped for mock backend"})
	} else {
		checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	}

	if cfg.Config.Sinks.CommitCmd.Raw != "" {
		checks = append(checks, checkCommand(cfg.Config.Sinks.CommitCmd.Argv, "commit_cmd"))
	}

	if cfg.Config.Offline.Server != "" {
		checks = append(checks, checkOfflineHealth(ctx, cfg.Config.Offline.Server))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkRecognizer verifies the backend can authenticate.
func checkRecognizer(cfg config.RecognizerConfig) Check {
	const name = "recognizer"
	switch cfg.Backend {
	case "mock":
		return Check{Name: name, Pass: true, Message: "mock backend"}
	case "gcloud":
		path := strings.TrimSpace(cfg.CredentialsFile)
		source := "credentials_file"
		if path == "" {
			path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
			source = "GOOGLE_APPLICATION_CREDENTIALS"
		}
		if path == "" {
			return Check{Name: name, Pass: false, Message: "no gcloud credentials (set recognizer.credentials_file or GOOGLE_APPLICATION_CREDENTIALS)"}
		}
		if _, err := os.Stat(path); err != nil {
			return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s unreadable: %v", source, err)}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("gcloud credentials from %s", source)}
	default:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkOfflineHealth probes the whisper server health endpoint.
func checkOfflineHealth(ctx context.Context, base string) Check {
	engine, err := whisperserver.New(base, whisperserver.Options{Timeout: 2 * time.Second})
	if err != nil {
		return Check{Name: "offline.server", Pass: false, Message: err.Error()}
	}
	if err := engine.Health(ctx); err != nil {
		return Check{Name: "offline.server", Pass: false, Message: fmt.Sprintf("health check failed: %v", err)}
	}
	return Check{Name: "offline.server", Pass: true, Message: fmt.Sprintf("ready at %s", base)}
}
