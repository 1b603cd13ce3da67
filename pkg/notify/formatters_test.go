package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetmon/fleetmon/pkg/bus"
)

func sampleEvent() bus.ProbeEvent {
	status := 503
	latency := 120
	return bus.ProbeEvent{
		ID:   1,
		URL:  "https://example.com",
		Name: "Example",
		Logs: bus.ProbeLogs{
			Timestamp:    "2026-07-29T10:00:00",
			TrafficLight: "red",
			HTTPStatus:   &status,
			LatencyMs:    &latency,
			DNSResolved:  true,
		},
	}
}

func TestChatMessage_IncludesIconAndFields(t *testing.T) {
	msg := ChatMessage(sampleEvent())
	assert.Contains(t, msg, "❌ Светофор: RED")
	assert.Contains(t, msg, "📡 Код ответа: 503")
	assert.Contains(t, msg, "🌐 DNS резолвинг: OK")
	assert.NotContains(t, msg, "Вердикт LLM")
}

func TestChatMessage_IncludesExplanationWhenPresent(t *testing.T) {
	event := sampleEvent()
	explanation := "Site is returning server errors."
	event.Explanation = &explanation

	msg := ChatMessage(event)
	assert.Contains(t, msg, "💬 <b>Вердикт LLM</b>")
	assert.Contains(t, msg, explanation)
}

func TestEmailSubject_FormatsLevelAndName(t *testing.T) {
	subject := EmailSubject(sampleEvent())
	assert.Equal(t, "[RED] Example — статус обновлён", subject)
}

func TestEmailBodies_PlainHasNoHTMLAndHTMLHasTable(t *testing.T) {
	plain, htmlBody := EmailBodies(sampleEvent())
	assert.NotContains(t, plain, "<")
	assert.Contains(t, htmlBody, "<table")
	assert.Contains(t, htmlBody, "Example")
}

func TestBuildContext_MissingFieldsBecomeDash(t *testing.T) {
	event := bus.ProbeEvent{Name: "X", URL: "https://x", Logs: bus.ProbeLogs{}}
	msg := ChatMessage(event)
	assert.Contains(t, msg, "📡 Код ответа: —")
	assert.Contains(t, msg, "🌐 DNS резолвинг: FAIL")
}
