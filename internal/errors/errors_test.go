package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/job-ingest/internal/errors"
)

func TestRecoverability(t *testing.T) {
	cases := []struct {
		name string
		err  *errors.ImportError
		want bool
	}{
		{"rate limited", errors.RateLimited("slow down", nil), true},
		{"access denied", errors.AccessDenied("forbidden", nil), false},
		{"not found", errors.NotFound("gone", nil), false},
		{"timeout", errors.Timeout("deadline", nil), true},
		{"server error", errors.HTTP(503, "unavailable"), true},
		{"client error", errors.HTTP(410, "gone"), false},
		{"parse", errors.Parse("no title", nil), false},
		{"invalid repo", errors.InvalidRepositoryURL("bad", nil), false},
		{"readme", errors.ReadmeNotFound("none", nil), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.err.Recoverable)
			assert.Equal(t, c.want, errors.IsRecoverable(c.err))
			assert.NotEmpty(t, c.err.StackTrace())
		})
	}
}

func TestAsImportError_FindsWrapped(t *testing.T) {
	inner := errors.NotFound("missing page", nil)
	wrapped := fmt.Errorf("import: %w", inner)

	got := errors.AsImportError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, errors.CodeNotFound, got.Code)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(wrapped))
}

func TestAsImportError_PlainErrorBecomesInternal(t *testing.T) {
	got := errors.AsImportError(stderrors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, errors.CodeInternal, got.Code)
	assert.False(t, got.Recoverable)
	assert.Nil(t, errors.AsImportError(nil))
	assert.Equal(t, errors.Code(""), errors.CodeOf(nil))
}

func TestErrorString(t *testing.T) {
	e := errors.Timeout("fetch timed out", stderrors.New("i/o timeout"))
	assert.Equal(t, "TIMEOUT: fetch timed out: i/o timeout", e.Error())
	assert.True(t, stderrors.Is(e, e.Err))
}
