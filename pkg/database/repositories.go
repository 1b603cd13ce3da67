package database

import (
	"fmt"
	"time"
)

// SiteRepository provides database operations for sites.
type SiteRepository struct {
	db *DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// Create inserts a new site and assigns its ID.
func (r *SiteRepository) Create(site *Site) error {
	if site.ComJSON == "" {
		site.ComJSON = "{}"
	}
	if site.HistoryJSON == "" {
		site.HistoryJSON = "[]"
	}
	query := `
		INSERT INTO sites (url, name, ping_interval_sec, com, last_traffic_light, history, last_ok, last_status, last_rtt)
		VALUES (:url, :name, :ping_interval_sec, :com, :last_traffic_light, :history, :last_ok, :last_status, :last_rtt)
	`
	result, err := r.db.NamedExec(query, site)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get site ID: %w", err)
	}
	site.ID = int(id)
	return nil
}

// GetByID gets a site by ID.
func (r *SiteRepository) GetByID(id int) (*Site, error) {
	var site Site
	if err := r.db.Get(&site, "SELECT * FROM sites WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to get site by id: %w", err)
	}
	return &site, nil
}

// GetByURL gets a site by its unique URL.
func (r *SiteRepository) GetByURL(url string) (*Site, error) {
	var site Site
	if err := r.db.Get(&site, "SELECT * FROM sites WHERE url = ?", url); err != nil {
		return nil, fmt.Errorf("failed to get site by url: %w", err)
	}
	return &site, nil
}

// List returns every site, ordered by id.
func (r *SiteRepository) List() ([]*Site, error) {
	var sites []*Site
	if err := r.db.Select(&sites, "SELECT * FROM sites ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// UpdateCycleResult atomically persists the outcome of one prober cycle:
// new last_* fields, truncated history and traffic light. This is the single
// write path for a site's status columns; callers never issue it concurrently
// for the same site id (see pkg/prober), so the transaction only needs to
// guarantee cross-field atomicity, not mutual exclusion between writers.
func (r *SiteRepository) UpdateCycleResult(site *Site) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE sites
		SET last_traffic_light = :last_traffic_light,
		    history = :history,
		    last_ok = :last_ok,
		    last_status = :last_status,
		    last_rtt = :last_rtt
		WHERE id = :id
	`
	if _, err := tx.NamedExec(query, site); err != nil {
		return fmt.Errorf("failed to update site cycle result: %w", err)
	}

	return tx.Commit()
}

// SetPingInterval updates a site's configured probe interval.
func (r *SiteRepository) SetPingInterval(id, intervalSec int) error {
	_, err := r.db.Exec("UPDATE sites SET ping_interval_sec = ? WHERE id = ?", intervalSec, id)
	if err != nil {
		return fmt.Errorf("failed to set ping interval: %w", err)
	}
	return nil
}

// Delete removes a site.
func (r *SiteRepository) Delete(id int) error {
	_, err := r.db.Exec("DELETE FROM sites WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	return nil
}

// TeamRepository provides database operations for teams.
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new team repository.
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a new team and assigns its ID.
func (r *TeamRepository) Create(team *Team) error {
	if team.TrackedSiteIDsJSON == "" {
		team.TrackedSiteIDsJSON = "[]"
	}
	if team.EmailRecipientsJSON == "" {
		team.EmailRecipientsJSON = "[]"
	}
	if team.WebhookURLsJSON == "" {
		team.WebhookURLsJSON = "[]"
	}
	query := `
		INSERT INTO teams (name, description, tracked_site_ids, tg_chat_id, email_recipients, webhook_urls)
		VALUES (:name, :description, :tracked_site_ids, :tg_chat_id, :email_recipients, :webhook_urls)
	`
	result, err := r.db.NamedExec(query, team)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get team ID: %w", err)
	}
	team.ID = int(id)
	return nil
}

// GetByID gets a team by ID.
func (r *TeamRepository) GetByID(id int) (*Team, error) {
	var team Team
	if err := r.db.Get(&team, "SELECT * FROM teams WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to get team by id: %w", err)
	}
	return &team, nil
}

// GetByName gets a team by its unique name.
func (r *TeamRepository) GetByName(name string) (*Team, error) {
	var team Team
	if err := r.db.Get(&team, "SELECT * FROM teams WHERE name = ?", name); err != nil {
		return nil, fmt.Errorf("failed to get team by name: %w", err)
	}
	return &team, nil
}

// List returns every team.
func (r *TeamRepository) List() ([]*Team, error) {
	var teams []*Team
	if err := r.db.Select(&teams, "SELECT * FROM teams ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// TeamsTrackingSite returns every team whose tracked_site_ids contains id.
// sqlite has no native array-contains operator over a JSON column here, so
// this filters in Go after a full scan; the teams table is small (recipient
// groups, not sites) so this stays cheap at fleet scale.
func (r *TeamRepository) TeamsTrackingSite(siteID int) ([]*Team, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	var matches []*Team
	for _, t := range all {
		ids, err := t.TrackedSiteIDs()
		if err != nil {
			continue
		}
		for _, id := range ids {
			if id == siteID {
				matches = append(matches, t)
				break
			}
		}
	}
	return matches, nil
}

// Update persists full team fields.
func (r *TeamRepository) Update(team *Team) error {
	query := `
		UPDATE teams
		SET name = :name, description = :description, tracked_site_ids = :tracked_site_ids,
		    tg_chat_id = :tg_chat_id, email_recipients = :email_recipients, webhook_urls = :webhook_urls
		WHERE id = :id
	`
	_, err := r.db.NamedExec(query, team)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return nil
}

// Delete removes a team.
func (r *TeamRepository) Delete(id int) error {
	_, err := r.db.Exec("DELETE FROM teams WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	return nil
}

// UserRepository provides database operations for chat subscribers.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertTgChat records or updates a subscriber's chat binding.
func (r *UserRepository) UpsertTgChat(tgUserID, tgChatID int64, login string) error {
	query := `
		INSERT INTO users (tg_user_id, tg_chat_id, login, enabled)
		VALUES (?, ?, ?, TRUE)
		ON CONFLICT(tg_user_id) DO UPDATE SET tg_chat_id = excluded.tg_chat_id, login = excluded.login, enabled = TRUE
	`
	_, err := r.db.Exec(query, tgUserID, tgChatID, login)
	if err != nil {
		return fmt.Errorf("failed to upsert user chat binding: %w", err)
	}
	return nil
}

// Disable marks a subscriber as no longer reachable (e.g. they blocked the bot).
func (r *UserRepository) Disable(tgUserID int64) error {
	_, err := r.db.Exec("UPDATE users SET enabled = FALSE WHERE tg_user_id = ?", tgUserID)
	if err != nil {
		return fmt.Errorf("failed to disable user: %w", err)
	}
	return nil
}

// GetByTgUserID looks up a subscriber by their Telegram user id.
func (r *UserRepository) GetByTgUserID(tgUserID int64) (*User, error) {
	var user User
	if err := r.db.Get(&user, "SELECT * FROM users WHERE tg_user_id = ?", tgUserID); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// AnalyticsRepository provides the local sqlite fallback analytics store,
// used when no clickhouse DSN is configured (see pkg/analytics).
type AnalyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository creates a new analytics repository.
func NewAnalyticsRepository(db *DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// AnalyticsRow is one append-only probe record.
type AnalyticsRow struct {
	SiteID          int       `db:"site_id"`
	URL             string    `db:"url"`
	Name            string    `db:"name"`
	Timestamp       time.Time `db:"timestamp"`
	TrafficLight    string    `db:"traffic_light"`
	HTTPStatus      *int      `db:"http_status"`
	LatencyMs       *int      `db:"latency_ms"`
	PingMs          *float64  `db:"ping_ms"`
	SSLDaysLeft     *int      `db:"ssl_days_left"`
	DNSResolved     bool      `db:"dns_resolved"`
	Redirects       *int      `db:"redirects"`
	ErrorsLast      *int      `db:"errors_last"`
	PingIntervalSec int       `db:"ping_interval_sec"`
}

// Append writes one analytics row. Rows are never updated or deleted from
// this path; the batch archiver (out of scope) is the only consumer that
// moves rows elsewhere.
func (r *AnalyticsRepository) Append(row *AnalyticsRow) error {
	query := `
		INSERT INTO site_logs (site_id, url, name, timestamp, traffic_light, http_status, latency_ms, ping_ms, ssl_days_left, dns_resolved, redirects, errors_last, ping_interval_sec)
		VALUES (:site_id, :url, :name, :timestamp, :traffic_light, :http_status, :latency_ms, :ping_ms, :ssl_days_left, :dns_resolved, :redirects, :errors_last, :ping_interval_sec)
	`
	_, err := r.db.NamedExec(query, row)
	if err != nil {
		return fmt.Errorf("failed to append analytics row: %w", err)
	}
	return nil
}
