package pgxeclog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedactHidesSensitiveKeysCaseInsensitively(t *testing.T) {
	require.Equal(t, "[REDACTED]", redact("Password", "s3cret"))
	require.Equal(t, "[REDACTED]", redact("API_KEY", "abc"))
	require.Equal(t, "hello", redact("message", "hello"))
}

func TestErrorFieldStringifiesTheErrorOrNilsOut(t *testing.T) {
	f := Error("err", errors.New("boom"))
	require.Equal(t, "boom", f.Value)

	f = Error("err", nil)
	require.Nil(t, f.Value)
}

func TestDurationFieldFormatsAsString(t *testing.T) {
	f := Duration("elapsed", 250*time.Millisecond)
	require.Equal(t, "250ms", f.Value)
}

func TestNewNoopDoesNotPanicOnAnyLevel(t *testing.T) {
	l := NewNoop()
	l.Debug("a")
	l.Info("b", String("k", "v"))
	l.Warn("c")
	l.Error("d", Error("err", errors.New("x")))
	require.NotNil(t, l.WithFields(Int("n", 1)))
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	require.Equal(t, "info", parseLevel("bogus").String())
	require.Equal(t, "debug", parseLevel("debug").String())
	require.Equal(t, "warn", parseLevel("WARN").String())
	require.Equal(t, "error", parseLevel("Error").String())
}
