package subcmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/easyuart/state"
)

func TestParse(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *state.Config) error { return nil }
	mods := []Mod{{Name: "relay", Usage: "run relay", Main: noop}, {Name: "monitor", Usage: "print frames", Main: noop}}

	m, err := Parse("monitor", mods)
	require.NoError(t, err)
	assert.Equal(t, "monitor", m.Name)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("vmc", mods)
	assert.EqualError(t, err, "unknown command='vmc'")

	assert.Equal(t, "  relay      run relay\n  monitor    print frames", Usage(mods))
}
