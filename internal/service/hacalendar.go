package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forkcast/backend/config"
)

// Dinner window used for conflict detection: 5pm to 9pm.
const (
	dinnerWindowStart = 17 * 60
	dinnerWindowEnd   = 21 * 60
)

// Keywords that strongly suggest the household eats out or is away.
var dinnerConflictKeywords = []string{
	"dinner", "restaurant", "reservation", "date night",
	"happy hour", "drinks", "cocktails", "eating out",
	"flight", "travel", "airport", "hotel",
}

// Keywords that are not conflicts even when they land in the evening.
var notDinnerKeywords = []string{
	"cook", "meal prep", "grocery", "groceries",
}

var allDayConflictKeywords = []string{
	"flight", "travel", "trip", "vacation", "out of town",
}

// HAEvent is a normalized Home Assistant calendar event.
type HAEvent struct {
	Date             string `json:"date"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	Summary          string `json:"summary"`
	Description      string `json:"description,omitempty"`
	Location         string `json:"location,omitempty"`
	Source           string `json:"source"`
	Calendar         string `json:"calendar"`
	IsDinnerConflict bool   `json:"is_dinner_conflict"`
	AllDay           bool   `json:"all_day"`
}

// haRawEvent matches the Home Assistant calendar API response shape.
type haRawEvent struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       haTime `json:"start"`
	End         haTime `json:"end"`
}

type haTime struct {
	Date     string `json:"date"`
	DateTime string `json:"dateTime"`
}

// HACalendarService pulls events from Home Assistant and flags the ones that
// conflict with cooking dinner at home.
type HACalendarService struct {
	cfg    *config.HomeAssistantConfig
	client *http.Client
	logger *zap.Logger
}

// NewHACalendarService creates the calendar service.
func NewHACalendarService(cfg *config.HomeAssistantConfig, logger *zap.Logger) *HACalendarService {
	return &HACalendarService{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Configured reports whether the Home Assistant connection is set up.
func (s *HACalendarService) Configured() bool {
	return s.cfg.BaseURL != "" && s.cfg.Token != "" && len(s.cfg.Calendars) > 0
}

// FetchEvents loads events from all configured calendars for the date range,
// inclusive. An unreachable calendar is logged and skipped rather than
// failing the whole fetch.
func (s *HACalendarService) FetchEvents(ctx context.Context, start, end time.Time) ([]HAEvent, error) {
	if !s.Configured() {
		return []HAEvent{}, nil
	}

	startStr := start.Format("2006-01-02") + "T00:00:00Z"
	endStr := end.AddDate(0, 0, 1).Format("2006-01-02") + "T00:00:00Z"

	var all []HAEvent
	for _, entity := range s.cfg.Calendars {
		events, err := s.fetchCalendar(ctx, entity, startStr, endStr)
		if err != nil {
			s.logger.Error("calendar fetch failed", zap.String("calendar", entity), zap.Error(err))
			continue
		}
		all = append(all, events...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date < all[j].Date
		}
		return all[i].StartTime < all[j].StartTime
	})

	conflicts := 0
	for _, ev := range all {
		if ev.IsDinnerConflict {
			conflicts++
		}
	}
	s.logger.Info("fetched calendar events",
		zap.Int("events", len(all)), zap.Int("dinner_conflicts", conflicts))
	return all, nil
}

func (s *HACalendarService) fetchCalendar(ctx context.Context, entity, start, end string) ([]HAEvent, error) {
	params := url.Values{"start": {start}, "end": {end}}
	endpoint := fmt.Sprintf("%s/api/calendars/%s?%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), entity, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("calendar request failed: status %d: %s", resp.StatusCode, body)
	}

	var raw []haRawEvent
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode calendar response: %w", err)
	}

	calName := calendarDisplayName(entity)

	events := make([]HAEvent, 0, len(raw))
	for _, ev := range raw {
		normalized, ok := normalizeHAEvent(ev, calName)
		if !ok {
			continue
		}
		events = append(events, normalized)
	}
	return events, nil
}

// calendarDisplayName turns "calendar.family_dinners" into "Family Dinners".
func calendarDisplayName(entity string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimPrefix(entity, "calendar."), "_", " "))
	for i, w := range words {
		words[i] = title(w)
	}
	return strings.Join(words, " ")
}

func normalizeHAEvent(ev haRawEvent, calendar string) (HAEvent, bool) {
	out := HAEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Source:      "homeassistant",
		Calendar:    calendar,
	}

	switch {
	case ev.Start.Date != "":
		out.Date = ev.Start.Date
		out.AllDay = true
	case ev.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return HAEvent{}, false
		}
		out.Date = start.Format("2006-01-02")
		out.StartTime = start.Format("15:04")
		if end, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			out.EndTime = end.Format("15:04")
		}
	default:
		return HAEvent{}, false
	}

	out.IsDinnerConflict = isDinnerConflict(ev)
	return out, true
}

// isDinnerConflict decides whether an event means nobody cooks that night.
// Keyword matches win; otherwise timed events conflict when they overlap the
// 5-9pm window, and all-day events only when travel-related.
func isDinnerConflict(ev haRawEvent) bool {
	summary := strings.ToLower(ev.Summary)

	for _, kw := range notDinnerKeywords {
		if strings.Contains(summary, kw) {
			return false
		}
	}
	for _, kw := range dinnerConflictKeywords {
		if strings.Contains(summary, kw) {
			return true
		}
	}

	if ev.Start.Date != "" && ev.Start.DateTime == "" {
		for _, kw := range allDayConflictKeywords {
			if strings.Contains(summary, kw) {
				return true
			}
		}
		return false
	}

	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return false
	}
	startMin := start.Hour()*60 + start.Minute()

	endMin := 23*60 + 59
	if end, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
		endMin = end.Hour()*60 + end.Minute()
	}

	return startMin < dinnerWindowEnd && endMin > dinnerWindowStart
}
