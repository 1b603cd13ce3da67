package emailsender

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmon/fleetmon/pkg/config"
)

func TestSend_SkipsSilentlyWithoutRecipients(t *testing.T) {
	s := New(&config.Config{})
	err := s.Send(nil, "subject", "plain", "")
	require.NoError(t, err)
}

func TestSend_SkipsSilentlyWithoutHost(t *testing.T) {
	s := New(&config.Config{Email: config.EmailConfig{FromAddr: "a@b.com"}})
	err := s.Send([]string{"x@y.com"}, "subject", "plain", "")
	require.NoError(t, err)
}

func TestBuildMessage_PlainOnlyHasNoMultipart(t *testing.T) {
	msg := string(buildMessage("from@x.com", []string{"to@y.com"}, "Subj", "body text", ""))
	assert.Contains(t, msg, "Content-Type: text/plain")
	assert.NotContains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "body text")
}

func TestBuildMessage_WithHTMLHasBothParts(t *testing.T) {
	msg := string(buildMessage("from@x.com", []string{"to@y.com"}, "Subj", "plain body", "<p>html</p>"))
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "plain body")
	assert.Contains(t, msg, "<p>html</p>")
	assert.Equal(t, 2, strings.Count(msg, "Content-Type: text/"))
}

func TestNonEmpty_FiltersBlankAndTrimsWhitespace(t *testing.T) {
	out := nonEmpty([]string{" a@b.com ", "", "  ", "c@d.com"})
	assert.Equal(t, []string{"a@b.com", "c@d.com"}, out)
}
