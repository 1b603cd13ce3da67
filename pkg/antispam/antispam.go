// Package antispam implements the Dispatcher's process-local suppression
// map: a notification fires at most once per (site, incident fingerprint)
// pair within a configurable window.
package antispam

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

type key struct {
	siteID      int
	incidentKey string
}

// Service guards a small in-memory map with a single mutex, matching the
// source's asyncio.Lock-guarded dict.
type Service struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[key]time.Time
}

// New creates a Service with suppression window ttl. A zero ttl disables
// suppression entirely.
func New(ttl time.Duration) *Service {
	return &Service{
		ttl:     ttl,
		entries: make(map[key]time.Time),
	}
}

// ShouldSend reports whether a notification for (siteID, incidentKey) is
// outside the suppression window, garbage-collecting stale entries first.
func (s *Service) ShouldSend(siteID int, incidentKey string) bool {
	if s.ttl == 0 {
		return true
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup(now)

	k := key{siteID, incidentKey}
	last, ok := s.entries[k]
	if !ok {
		return true
	}
	return now.Sub(last) >= s.ttl
}

// MarkSent records that a notification for (siteID, incidentKey) was just sent.
func (s *Service) MarkSent(siteID int, incidentKey string) {
	if s.ttl == 0 {
		return
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key{siteID, incidentKey}] = now
	s.cleanup(now)
}

func (s *Service) cleanup(now time.Time) {
	for k, ts := range s.entries {
		if now.Sub(ts) >= s.ttl {
			delete(s.entries, k)
		}
	}
}

// IncidentKey computes the fingerprint "{TRAFFIC_LIGHT}|{http_status}|{errors_last}",
// using "-" for absent numeric fields.
func IncidentKey(trafficLight string, httpStatus, errorsLast *int) string {
	status := "-"
	if httpStatus != nil {
		status = strconv.Itoa(*httpStatus)
	}
	errs := "-"
	if errorsLast != nil {
		errs = strconv.Itoa(*errorsLast)
	}
	return strings.ToUpper(trafficLight) + "|" + status + "|" + errs
}
