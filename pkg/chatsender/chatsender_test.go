package chatsender

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/fleetmon/pkg/config"
)

func TestNew_WithoutToken_ReturnsNoopSender(t *testing.T) {
	s, err := New(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, s.bot)
	assert.NoError(t, s.Send(123, "hello"))
}

func TestSplitMessage_ReturnsSingleChunkUnderLimit(t *testing.T) {
	chunks := splitMessage("short message", 3800)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short message", chunks[0])
}

func TestSplitMessage_SplitsOnNewlines(t *testing.T) {
	line := strings.Repeat("a", 2000)
	text := line + "\n" + line + "\n" + line
	chunks := splitMessage(text, 3800)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 3800)
	}
}

func TestSplitMessage_HardSlicesOverlongSingleLine(t *testing.T) {
	text := strings.Repeat("b", 9000)
	chunks := splitMessage(text, 3800)
	require.Len(t, chunks, 3)
	assert.Equal(t, 3800, len(chunks[0]))
	assert.Equal(t, 3800, len(chunks[1]))
	assert.Equal(t, 1400, len(chunks[2]))
}
