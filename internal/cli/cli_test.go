package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/canto.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/canto.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "version flag",
			args:     []string{"--version"},
			wantCmd:  CommandVersion,
			wantHelp: false,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "valid cancel command",
			args:     []string{"cancel"},
			wantCmd:  CommandCancel,
			wantHelp: false,
		},
		{
			name:     "valid stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantHelp: false,
			wantPath: "/tmp/cfg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestParseCommandFlags(t *testing.T) {
	parsed, err := Parse([]string{"listen", "--locale", "en-US", "--auto-start", "--locale", "de-DE"})
	require.NoError(t, err)
	require.Equal(t, CommandListen, parsed.Command)
	require.Equal(t, []string{"en-US", "de-DE"}, parsed.Locales)
	require.True(t, parsed.AutoStart)

	parsed, err = Parse([]string{"--config", "/tmp/cfg", "transcribe", "--model", "/m/base.bin", "--audio", "/a/clip.wav"})
	require.NoError(t, err)
	require.Equal(t, CommandTranscribe, parsed.Command)
	require.Equal(t, "/m/base.bin", parsed.ModelPath)
	require.Equal(t, "/a/clip.wav", parsed.AudioPath)
	require.Equal(t, "/tmp/cfg", parsed.ConfigPath)

	parsed, err = Parse([]string{"toggle"})
	require.NoError(t, err)
	require.Empty(t, parsed.Locales)
}

func TestParseCommandFlagErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "locale without value", args: []string{"start", "--locale"}, wantErr: "--locale requires a value"},
		{name: "locale followed by flag", args: []string{"listen", "--locale", "--auto-start"}, wantErr: "--locale requires a value"},
		{name: "flag not accepted by command", args: []string{"start", "--auto-start"}, wantErr: "unexpected argument"},
		{name: "positional after start", args: []string{"start", "en-US"}, wantErr: "unexpected argument"},
		{name: "transcribe missing audio", args: []string{"transcribe", "--model", "/m.bin"}, wantErr: "requires --model and --audio"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("canto")
	for _, cmd := range []string{"listen", "start", "stop", "cancel", "reset", "toggle", "events", "transcribe", "doctor"} {
		require.Contains(t, text, cmd)
	}
	require.Contains(t, text, "--config PATH")
}
