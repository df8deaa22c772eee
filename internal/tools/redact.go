package tools

import (
	"regexp"
	"strings"
)

// ResultGuard redacts or truncates tool output before it is handed
// back to the orchestrator (and, from there, persisted to history),
// independent of what the tool itself returned. A zero ResultGuard is
// inert.
type ResultGuard struct {
	MaxChars       int
	Denylist       []string
	RedactPatterns []string
	RedactionText  string
	TruncateSuffix string
}

func (g ResultGuard) active() bool {
	return g.MaxChars > 0 || len(g.Denylist) > 0 || len(g.RedactPatterns) > 0
}

func (g ResultGuard) apply(toolName string, result Result) Result {
	if !g.active() || result.IsError {
		return result
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[redacted]"
	}
	truncateSuffix := strings.TrimSpace(g.TruncateSuffix)
	if truncateSuffix == "" {
		truncateSuffix = "...[truncated]"
	}

	for _, denied := range g.Denylist {
		if strings.EqualFold(strings.TrimSpace(denied), toolName) {
			result.Content = redaction
			return result
		}
	}

	if len(g.RedactPatterns) > 0 && result.Content != "" {
		content := result.Content
		for _, pattern := range g.RedactPatterns {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			content = re.ReplaceAllString(content, redaction)
		}
		result.Content = content
	}

	if g.MaxChars > 0 && len(result.Content) > g.MaxChars {
		result.Content = result.Content[:g.MaxChars] + truncateSuffix
	}

	return result
}

// guarded wraps inv so its final value passes through g before the
// caller observes it. Progress values are untouched — a guard only
// governs what gets persisted as the tool's completed answer.
func guarded(inv *Invocation, toolName string, g ResultGuard) *Invocation {
	if !g.active() {
		return inv
	}

	final := make(chan Result, 1)
	go func() {
		defer close(final)
		select {
		case r, ok := <-inv.final:
			if !ok {
				return
			}
			final <- g.apply(toolName, r)
		}
	}()

	return &Invocation{progress: inv.progress, final: final}
}
