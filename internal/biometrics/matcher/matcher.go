// Package matcher runs the external STR comparison tool and classifies its
// output.
package matcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

// Matcher compares two STR profile files and classifies the relationship.
type Matcher interface {
	Compare(ctx context.Context, storedPath, newPath string) (models.SimilarityResult, error)
}

// ScriptMatcher invokes an external comparison script with a bounded timeout.
// The script receives the stored and new profile paths as arguments and
// reports its verdict as free text on stdout.
type ScriptMatcher struct {
	script  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewScript builds a matcher around the given script path. A non-positive
// timeout falls back to 60 seconds.
func NewScript(script string, timeout time.Duration, logger *slog.Logger) *ScriptMatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ScriptMatcher{script: script, timeout: timeout, logger: logger}
}

func (m *ScriptMatcher) Compare(ctx context.Context, storedPath, newPath string) (models.SimilarityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.script, storedPath, newPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			m.logger.Error("matcher timed out", "script", m.script, "timeout", m.timeout)
			return "", dErrors.Wrap(err, dErrors.CodeMatchTimeout, "similarity matcher timed out")
		}
		m.logger.Error("matcher failed", "script", m.script, "stderr", stderr.String(), "error", err)
		return "", dErrors.Wrap(err, dErrors.CodeMatchFailed, "similarity matcher failed")
	}

	result := Classify(stdout.String())
	m.logger.Info("matcher completed", "result", string(result))
	return result, nil
}

// Classify maps the matcher's textual output to a similarity result by
// substring containment, checked in priority order. Unrecognized output
// defaults to UNRELATED_PERSON.
func Classify(output string) models.SimilarityResult {
	switch {
	case strings.Contains(output, string(models.SamePerson)):
		return models.SamePerson
	case strings.Contains(output, string(models.RelatedPerson)):
		return models.RelatedPerson
	case strings.Contains(output, string(models.UnrelatedPerson)):
		return models.UnrelatedPerson
	default:
		return models.UnrelatedPerson
	}
}
