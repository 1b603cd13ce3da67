package database

import (
	"encoding/json"
	"time"
)

// Com is the opaque per-site flag bag. Recognized keys are llm, tg and
// skip_notification; anything else passes through untouched.
type Com map[string]interface{}

// Site is a monitoring target.
type Site struct {
	ID                int        `db:"id" json:"id"`
	URL               string     `db:"url" json:"url"`
	Name              string     `db:"name" json:"name"`
	PingIntervalSec   int        `db:"ping_interval_sec" json:"ping_interval_sec"`
	ComJSON           string     `db:"com" json:"-"`
	LastTrafficLight  *string    `db:"last_traffic_light" json:"last_traffic_light"`
	HistoryJSON       string     `db:"history" json:"-"`
	LastOK            *bool      `db:"last_ok" json:"last_ok"`
	LastStatus        *int       `db:"last_status" json:"last_status"`
	LastRTT           *float64   `db:"last_rtt" json:"last_rtt"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ProbeSnapshot is the unit of observation produced by one probe cycle.
type ProbeSnapshot struct {
	Timestamp     string   `json:"timestamp"`
	TrafficLight  string   `json:"traffic_light"`
	HTTPStatus    *int     `json:"http_status"`
	LatencyMs     *int     `json:"latency_ms"`
	PingMs        *float64 `json:"ping_ms"`
	SSLDaysLeft   *int     `json:"ssl_days_left"`
	DNSResolved   bool     `json:"dns_resolved"`
	Redirects     *int     `json:"redirects"`
	ErrorsLast    *int     `json:"errors_last"`
}

// Com unmarshals the site's stored flag bag.
func (s *Site) Com() (Com, error) {
	if s.ComJSON == "" {
		return Com{}, nil
	}
	var c Com
	if err := json.Unmarshal([]byte(s.ComJSON), &c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCom marshals c back into the stored column.
func (s *Site) SetCom(c Com) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.ComJSON = string(data)
	return nil
}

// History unmarshals the bounded recent-snapshot history, newest last.
func (s *Site) History() ([]ProbeSnapshot, error) {
	if s.HistoryJSON == "" {
		return nil, nil
	}
	var h []ProbeSnapshot
	if err := json.Unmarshal([]byte(s.HistoryJSON), &h); err != nil {
		return nil, err
	}
	return h, nil
}

// SetHistory marshals history back into the stored column, truncated to the
// most recent maxHistoryLen entries.
func (s *Site) SetHistory(h []ProbeSnapshot) error {
	if len(h) > maxHistoryLen {
		h = h[len(h)-maxHistoryLen:]
	}
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	s.HistoryJSON = string(data)
	return nil
}

const maxHistoryLen = 10

// Team is a recipient group binding sites to chat/email destinations.
type Team struct {
	ID                 int       `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Description        *string   `db:"description" json:"description"`
	TrackedSiteIDsJSON string    `db:"tracked_site_ids" json:"-"`
	TgChatID           *int64    `db:"tg_chat_id" json:"tg_chat_id"`
	EmailRecipientsJSON string   `db:"email_recipients" json:"-"`
	WebhookURLsJSON    string    `db:"webhook_urls" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// TrackedSiteIDs unmarshals the set of site IDs this team follows.
func (t *Team) TrackedSiteIDs() ([]int, error) {
	return unmarshalIntSlice(t.TrackedSiteIDsJSON)
}

// SetTrackedSiteIDs marshals the tracked site id set back into the column.
func (t *Team) SetTrackedSiteIDs(ids []int) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	t.TrackedSiteIDsJSON = string(data)
	return nil
}

// EmailRecipients unmarshals the normalized recipient email list.
func (t *Team) EmailRecipients() ([]string, error) {
	return unmarshalStringSlice(t.EmailRecipientsJSON)
}

// SetEmailRecipients marshals the recipient list back into the column.
func (t *Team) SetEmailRecipients(emails []string) error {
	data, err := json.Marshal(emails)
	if err != nil {
		return err
	}
	t.EmailRecipientsJSON = string(data)
	return nil
}

func unmarshalIntSlice(data string) ([]int, error) {
	if data == "" {
		return nil, nil
	}
	var v []int
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func unmarshalStringSlice(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// User is an individual chat subscriber.
type User struct {
	ID        int       `db:"id" json:"id"`
	TgUserID  int64     `db:"tg_user_id" json:"tg_user_id"`
	TgChatID  *int64    `db:"tg_chat_id" json:"tg_chat_id"`
	Login     *string   `db:"login" json:"login"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
