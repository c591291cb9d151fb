package devices

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livecaption/internal/capture/malgo"
)

func TestPrintDevices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, []malgo.DeviceInfo{
		{Index: 0, Name: "Built-in Microphone", ID: "hw:0,0", IsDefault: true},
		{Index: 1, Name: "USB Audio", ID: "hw:1,0"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "*")
	assert.Contains(t, lines[1], "Built-in Microphone")
	assert.Contains(t, lines[2], "hw:1,0")
}

func TestPrintNoDevices(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printDevices(&buf, nil))
	assert.Equal(t, "No capture devices found\n", buf.String())
}
