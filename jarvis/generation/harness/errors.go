package harness

import (
	"errors"
	"strings"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

const (
	msgMissingKey   = "⚠ No model API key configured. Set JARVIS_LLM_API_KEY (or llm.api_key in config.yaml) and restart."
	msgTimeout      = "⚠ Request timed out. The model provider may be slow right now, please try again."
	msgConnection   = "⚠ Can't reach the model provider. Check your internet connection."
	msgRateLimited  = "⚠ Too many requests right now. Give me a moment and try again."
	msgProviderFail = "⚠ LLM error: "
	msgUnexpected   = "⚠ Something went wrong while answering. Please try again."

	maxDiagnosticLength = 200
)

// UserMessage renders err as a short readable reply. It never returns raw stack traces.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch ports.KindOf(err) {
	case ports.KindConfig:
		if errors.Is(err, ports.ErrMissingCredentials) {
			return msgMissingKey
		}
		return "⚠ " + diagnostic(err)
	case ports.KindTransientProvider:
		switch {
		case errors.Is(err, ports.ErrRateLimited):
			return msgRateLimited
		case errors.Is(err, ports.ErrTimeout):
			return msgTimeout
		default:
			return msgConnection
		}
	case ports.KindProviderResponse:
		return msgProviderFail + diagnostic(err)
	case ports.KindValidation, ports.KindStructuredParse:
		return "⚠ " + diagnostic(err)
	default:
		return msgUnexpected
	}
}

// diagnostic is the innermost typed message, bounded in length.
func diagnostic(err error) string {
	var e *ports.Error
	msg := err.Error()
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	msg = strings.TrimSpace(msg)
	if r := []rune(msg); len(r) > maxDiagnosticLength {
		msg = string(r[:maxDiagnosticLength]) + "..."
	}
	return msg
}
