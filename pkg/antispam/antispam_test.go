package antispam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestService_ShouldSend_TrueWhenNoPriorEntry(t *testing.T) {
	s := New(60 * time.Second)
	assert.True(t, s.ShouldSend(1, "RED|-|-"))
}

func TestService_ShouldSend_FalseWithinWindow(t *testing.T) {
	s := New(60 * time.Second)
	s.MarkSent(1, "RED|-|-")
	assert.False(t, s.ShouldSend(1, "RED|-|-"))
}

func TestService_ShouldSend_TrueAfterWindowElapses(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.MarkSent(1, "RED|-|-")
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.ShouldSend(1, "RED|-|-"))
}

func TestService_ShouldSend_TrueOnFingerprintChange(t *testing.T) {
	s := New(60 * time.Second)
	s.MarkSent(1, "RED|-|-")
	assert.True(t, s.ShouldSend(1, "ORANGE|503|-"))
}

func TestService_ShouldSend_AlwaysTrueWithZeroWindow(t *testing.T) {
	s := New(0)
	s.MarkSent(1, "RED|-|-")
	assert.True(t, s.ShouldSend(1, "RED|-|-"))
}

func TestIncidentKey_FormatsDashesForNil(t *testing.T) {
	assert.Equal(t, "RED|-|-", IncidentKey("red", nil, nil))

	status := 503
	errs := 2
	assert.Equal(t, "ORANGE|503|2", IncidentKey("orange", &status, &errs))
}
