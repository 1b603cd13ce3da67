package llmworker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
)

func TestWorker_Explain_ReturnsEmptyWithoutLLMRequest(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.APIKey = "test-key"
	w := New(nil, cfg)

	event := bus.ProbeEvent{Com: map[string]interface{}{"llm": false}}
	assert.Equal(t, "", w.explain(context.Background(), event))
}

func TestWorker_Explain_ReturnsEmptyWithoutAPIKey(t *testing.T) {
	cfg := &config.Config{}
	w := New(nil, cfg)

	event := bus.ProbeEvent{Com: map[string]interface{}{"llm": true}}
	assert.Equal(t, "", w.explain(context.Background(), event))
}

func TestWorker_GetStatus_ReportsRunningFalseBeforeStart(t *testing.T) {
	cfg := &config.Config{}
	w := New(nil, cfg)

	status := w.GetStatus()
	assert.Equal(t, false, status["running"])
	assert.Equal(t, int64(0), status["processed"])
}
