package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandListen     Command = "listen"
	CommandStart      Command = "start"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandReset      Command = "reset"
	CommandToggle     Command = "toggle"
	CommandStatus     Command = "status"
	CommandEvents     Command = "events"
	CommandTranscribe Command = "transcribe"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// commandFlags lists the flags each command accepts after its name.
var commandFlags = map[Command][]string{
	CommandListen:     {"--locale", "--auto-start"},
	CommandStart:      {"--locale"},
	CommandStop:       nil,
	CommandCancel:     nil,
	CommandReset:      nil,
	CommandToggle:     {"--locale"},
	CommandStatus:     nil,
	CommandEvents:     nil,
	CommandTranscribe: {"--model", "--audio"},
	CommandDevices:    nil,
	CommandDoctor:     nil,
	CommandVersion:    nil,
	CommandHelp:       nil,
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	Locales   []string
	AutoStart bool
	ModelPath string
	AudioPath string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := commandFlags[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandFlags(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandFlags(parsed *Parsed, rest []string) error {
	allowed := commandFlags[parsed.Command]
	if len(allowed) == 0 && len(rest) > 0 {
		return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
	}

	value := func(i int, flag string) (string, error) {
		if i >= len(rest) || strings.TrimSpace(rest[i]) == "" || strings.HasPrefix(rest[i], "-") {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return rest[i], nil
	}

	for i := 0; i < len(rest); i++ {
		flag := rest[i]
		if !accepts(allowed, flag) {
			return fmt.Errorf("unexpected argument %q for command %q", flag, parsed.Command)
		}

		switch flag {
		case "--auto-start":
			parsed.AutoStart = true
		case "--locale":
			i++
			v, err := value(i, flag)
			if err != nil {
				return err
			}
			parsed.Locales = append(parsed.Locales, v)
		case "--model":
			i++
			v, err := value(i, flag)
			if err != nil {
				return err
			}
			parsed.ModelPath = v
		case "--audio":
			i++
			v, err := value(i, flag)
			if err != nil {
				return err
			}
			parsed.AudioPath = v
		}
	}

	if parsed.Command == CommandTranscribe && (parsed.ModelPath == "" || parsed.AudioPath == "") {
		return errors.New("transcribe requires --model and --audio")
	}
	return nil
}

func accepts(allowed []string, flag string) bool {
	for _, candidate := range allowed {
		if candidate == flag {
			return true
		}
	}
	return false
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [flags]

Commands:
  listen      Run the listening daemon (--locale L ..., --auto-start)
  start       Start continuous listening (--locale L ...; default: config locales)
  stop        Stop listening; the current utterance may still finish
  cancel      Cancel listening and discard the current utterance
  reset       Clear a failed session back to idle
  toggle      Start listening, or stop when already listening
  status      Print current state
  events      Stream session events as JSON lines
  transcribe  Transcribe a WAV file offline (--model PATH --audio PATH)
  devices     List available input devices
  doctor      Run configuration and environment checks
  version     Print version information
  help        Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/canto/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
