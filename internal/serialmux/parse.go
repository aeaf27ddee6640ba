package serialmux

import "strings"

// Response kinds reported by the mmWave demo CLI.
const (
	ResponseDone    = "done"
	ResponseError   = "error"
	ResponseIgnored = "ignored"
	ResponseEcho    = "echo"
	ResponseUnknown = "unknown"
)

// cliPrompt prefixes every command echo from the demo firmware.
const cliPrompt = "mmwDemo:/>"

// ClassifyResponse inspects one CLI output line and returns a response kind.
// When the command is known, an echo of it (with or without the prompt) is
// reported as ResponseEcho.
func ClassifyResponse(line, command string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "Done":
		return ResponseDone
	case strings.HasPrefix(trimmed, "Error"), strings.Contains(trimmed, "not recognized"):
		return ResponseError
	case strings.HasPrefix(trimmed, "Ignored"):
		return ResponseIgnored
	}

	echo := strings.TrimSpace(strings.TrimPrefix(trimmed, cliPrompt))
	if strings.HasPrefix(trimmed, cliPrompt) || (command != "" && echo == strings.TrimSpace(command)) {
		return ResponseEcho
	}
	return ResponseUnknown
}
