// Package llmworker implements the LLM enrichment worker: it consumes
// ProbeEvents destined for model enrichment, asks a chat model for a short
// status summary when requested, and republishes the event — always, even
// on a model error — so the dispatcher never loses a fan-out.
package llmworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
)

const promptTemplate = `You are monitoring the website "%s" (%s). Given this health snapshot, write one short plaintext sentence summarizing its current status for an on-call engineer. Snapshot: %s`

// Worker consumes pinger-to-llm-queue and republishes to llm.events/llm.group.
type Worker struct {
	bus    *bus.Bus
	cfg    *config.Config
	client *openai.Client

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	processed int64
	errored   int64
}

// New creates a Worker. The OpenAI client is only constructed when an API
// key is configured; com.llm requests with no key yield an empty explanation.
func New(b *bus.Bus, cfg *config.Config) *Worker {
	w := &Worker{bus: b, cfg: cfg}
	if cfg.LLM.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			clientCfg.BaseURL = cfg.LLM.BaseURL
		}
		w.client = openai.NewClientWithConfig(clientCfg)
	}
	return w
}

// Start launches the consume loop in a goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	deliveries, err := w.bus.Consume(w.cfg.Rabbit.PingerToLLMQueue, "llmworker")
	if err != nil {
		return fmt.Errorf("failed to consume pinger-to-llm-queue: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	log.Println("🧠 Starting LLM enrichment worker...")
	go w.loop(ctx, deliveries)
	log.Println("✅ LLM enrichment worker started")
	return nil
}

// Stop cancels the consume loop. The current delivery, if any, finishes
// processing before the loop exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	log.Println("🛑 Stopping LLM enrichment worker...")
	w.cancel()
	w.running = false
}

// GetStatus reports live counters for the status surface.
func (w *Worker) GetStatus() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]interface{}{
		"running":   w.running,
		"processed": w.processed,
		"errored":   w.errored,
	}
}

func (w *Worker) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(context.Background(), d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var event bus.ProbeEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		log.Printf("🧠 failed to decode probe event: %v", err)
		d.Nack(false, false)
		return
	}

	if event.SkipNotification() {
		d.Ack(false)
		return
	}

	explanation := w.explain(ctx, event)
	event.Explanation = &explanation

	if err := w.bus.Publish(ctx, w.cfg.Rabbit.LLMExchange, w.cfg.Rabbit.LLMRoutingKey, event); err != nil {
		log.Printf("🧠 site %d: failed to republish enriched event: %v", event.ID, err)
		d.Nack(false, false)
		return
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	d.Ack(false)
}

// explain returns a model-generated summary, or the empty string if
// enrichment was not requested, no key is configured, or the model call
// failed. A model error is logged and swallowed, never propagated.
func (w *Worker) explain(ctx context.Context, event bus.ProbeEvent) string {
	if !event.LLMRequested() || w.client == nil {
		return ""
	}

	snapshot, err := json.Marshal(event.Logs)
	if err != nil {
		return ""
	}

	prompt := fmt.Sprintf(promptTemplate, event.Name, event.URL, string(snapshot))

	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.cfg.LLM.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		w.mu.Lock()
		w.errored++
		w.mu.Unlock()
		log.Printf("🧠 site %d: model call failed, continuing with empty explanation: %v", event.ID, err)
		return ""
	}

	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
