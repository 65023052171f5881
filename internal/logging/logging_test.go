package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVerbosityLevels(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(0) })

	cases := map[int]string{0: "warn", 1: "info", 2: "debug", 3: "trace", 9: "trace", -1: "warn"}
	for count, want := range cases {
		SetVerbosity(count)
		assert.Equal(t, want, LevelName(), "-v x%d", count)
	}
	SetVerbosity(7)
	assert.Equal(t, 4, Verbosity())
}

func TestParseLevel(t *testing.T) {
	lvl, count, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)
	assert.Equal(t, 2, count)

	_, _, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestOutputHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetVerbosity(0)
	})

	SetVerbosity(0)
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	SetVerbosity(4)
	Tracef("deep")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "deep")
}
