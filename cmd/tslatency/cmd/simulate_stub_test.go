//go:build !gst

package cmd

import (
	"testing"

	"github.com/MeKo-Tech/tslatency/internal/gstpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateCommand_GstUnavailable(t *testing.T) {
	isolate(t)
	_, _, err := executeCommand(t, "simulate", "--transport", "gst", "--frames", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, gstpipe.ErrUnavailable)
}
