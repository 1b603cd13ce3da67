// Package dispatcher implements the Dispatcher: it consumes LLM-enriched
// ProbeEvents, resolves recipients, applies anti-spam suppression, and fans
// out notifications over the chat and email transports.
package dispatcher

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fleetmon/fleetmon/pkg/antispam"
	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/chatsender"
	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
	"github.com/fleetmon/fleetmon/pkg/emailsender"
	"github.com/fleetmon/fleetmon/pkg/notify"
)

// Dispatcher owns the antispam map, the bus consumer and the two transport
// senders. Singleton by design: anti-spam correctness relies on one process
// owning the suppression map (see pkg/antispam).
type Dispatcher struct {
	db    *database.DB
	bus   *bus.Bus
	cfg   *config.Config
	spam  *antispam.Service
	chat  *chatsender.Sender
	email *emailsender.Sender

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	dispatched int64
	suppressed int64
	dropped    int64
}

// New wires a Dispatcher from its dependencies. window is the anti-spam
// suppression window in seconds.
func New(db *database.DB, b *bus.Bus, cfg *config.Config, chat *chatsender.Sender, email *emailsender.Sender, window int) *Dispatcher {
	return &Dispatcher{
		db:    db,
		bus:   b,
		cfg:   cfg,
		spam:  antispam.New(secondsToDuration(window)),
		chat:  chat,
		email: email,
	}
}

// Start launches the consume loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	deliveries, err := d.bus.Consume(d.cfg.Rabbit.LLMToDispatcherQueue, "dispatcher")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	log.Println("📬 Starting dispatcher...")
	go d.loop(ctx, deliveries)
	log.Println("✅ Dispatcher started")
	return nil
}

// Stop cancels the consume loop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	log.Println("🛑 Stopping dispatcher...")
	d.cancel()
	d.running = false
}

// GetStatus reports live counters for the status surface.
func (d *Dispatcher) GetStatus() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"running":    d.running,
		"dispatched": d.dispatched,
		"suppressed": d.suppressed,
		"dropped":    d.dropped,
	}
}

func (d *Dispatcher) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			d.handle(delivery)
		}
	}
}

func (d *Dispatcher) handle(delivery amqp.Delivery) {
	var event bus.ProbeEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		log.Printf("📬 failed to decode probe event: %v", err)
		delivery.Nack(false, false)
		return
	}

	if event.SkipNotification() {
		delivery.Ack(false)
		return
	}

	siteID, ok := d.resolveSiteID(event)
	if !ok {
		log.Printf("📬 dropping event for unknown site (id=%d url=%s)", event.ID, event.URL)
		d.incr(&d.dropped)
		delivery.Ack(false)
		return
	}

	incidentKey := antispam.IncidentKey(event.Logs.TrafficLight, event.Logs.HTTPStatus, event.Logs.ErrorsLast)
	if !d.spam.ShouldSend(siteID, incidentKey) {
		d.incr(&d.suppressed)
		delivery.Ack(false)
		return
	}

	teams, err := d.db.TeamRepository().TeamsTrackingSite(siteID)
	if err != nil {
		log.Printf("📬 failed to resolve teams for site %d: %v", siteID, err)
		delivery.Nack(false, false)
		return
	}

	chatIDs, emailGroups := recipientsFor(teams)
	if extra, ok := event.TelegramOverride(); ok {
		chatIDs = appendUnique(chatIDs, extra)
	}

	if len(chatIDs) == 0 && len(emailGroups) == 0 {
		log.Printf("📬 no recipients for site %d", siteID)
		d.incr(&d.dropped)
		delivery.Ack(false)
		return
	}

	d.send(chatIDs, emailGroups, event)
	d.spam.MarkSent(siteID, incidentKey)
	d.incr(&d.dispatched)
	delivery.Ack(false)
}

func (d *Dispatcher) send(chatIDs []int64, groups []EmailGroup, event bus.ProbeEvent) {
	text := notify.ChatMessage(event)
	for _, chatID := range chatIDs {
		if err := d.chat.Send(chatID, text); err != nil {
			log.Printf("📬 chat send to %d failed: %v", chatID, err)
		}
	}

	if len(groups) == 0 {
		return
	}

	subject := notify.EmailSubject(event)
	plain, htmlBody := notify.EmailBodies(event)

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group EmailGroup) {
			defer wg.Done()
			if err := d.email.Send(group.Emails, subject, plain, htmlBody); err != nil {
				log.Printf("📬 email send to team %q failed: %v", group.TeamName, err)
			}
		}(group)
	}
	wg.Wait()
}

// resolveSiteID implements the spec's id-then-url-then-autocreate resolution.
func (d *Dispatcher) resolveSiteID(event bus.ProbeEvent) (int, bool) {
	if event.ID != 0 {
		if site, err := d.db.SiteRepository().GetByID(event.ID); err == nil {
			return site.ID, true
		}
	}

	if event.URL != "" {
		if site, err := d.db.SiteRepository().GetByURL(event.URL); err == nil {
			return site.ID, true
		}
		if d.cfg.Dispatcher.AutocreateSites {
			name := event.Name
			if name == "" {
				name = event.URL
			}
			site := &database.Site{URL: event.URL, Name: name, PingIntervalSec: d.cfg.Pinger.IntervalSec}
			if err := d.db.SiteRepository().Create(site); err == nil {
				return site.ID, true
			}
		}
	}

	return 0, false
}

// EmailGroup is one team's deduped recipient list. Keeping groups separate
// per team (rather than merging every team's addresses into one list) means
// a send to one team never discloses another team's addresses and can fail
// independently of it.
type EmailGroup struct {
	TeamName string
	Emails   []string
}

func recipientsFor(teams []*database.Team) (chatIDs []int64, groups []EmailGroup) {
	seenChats := make(map[int64]bool)

	for _, team := range teams {
		if team.TgChatID != nil && !seenChats[*team.TgChatID] {
			seenChats[*team.TgChatID] = true
			chatIDs = append(chatIDs, *team.TgChatID)
		}
		recipients, err := team.EmailRecipients()
		if err != nil || len(recipients) == 0 {
			continue
		}
		seenEmails := make(map[string]bool, len(recipients))
		var emails []string
		for _, e := range recipients {
			if !seenEmails[e] {
				seenEmails[e] = true
				emails = append(emails, e)
			}
		}
		if len(emails) > 0 {
			groups = append(groups, EmailGroup{TeamName: team.Name, Emails: emails})
		}
	}
	return chatIDs, groups
}

func appendUnique(chatIDs []int64, id int64) []int64 {
	for _, c := range chatIDs {
		if c == id {
			return chatIDs
		}
	}
	return append(chatIDs, id)
}

func (d *Dispatcher) incr(counter *int64) {
	d.mu.Lock()
	*counter++
	d.mu.Unlock()
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
