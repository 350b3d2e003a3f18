// Package hazardctx builds the history block appended to the model prompt:
// similar past hazards, near-miss notes, and day/weather cautions.
package hazardctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ibar-Aki/solar-aldrin-sub001/internal/pkg/logger"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/store"
	"github.com/Ibar-Aki/solar-aldrin-sub001/pkg/textnorm"

	"golang.org/x/sync/errgroup"
)

const moduleName = "HazardContext"

// Filter narrows every history view.
type Filter struct {
	SiteName         string
	SimilarTo        string
	ExcludeSessionID string
}

type RiskRecord struct {
	SessionID         string
	CompletedAt       time.Time
	WorkDescription   string
	HazardDescription string
	RiskLevel         int
	Countermeasures   []string
}

type NearMissRecord struct {
	SessionID  string
	ReportedAt time.Time
	Note       string
}

// HistoryStore is the read-only view over completed sessions.
type HistoryStore interface {
	GetRecentRisks(ctx context.Context, days int, filter Filter) ([]RiskRecord, error)
	GetPastRisks(ctx context.Context, limit int, filter Filter) ([]RiskRecord, error)
	GetHiyariHattoItems(ctx context.Context, limit int, filter Filter) ([]NearMissRecord, error)
}

type Options struct {
	RecentDays    int
	PastLimit     int
	NearMissLimit int
	MaxChars      int
	// Location is the site's time zone for day-of-week notes. Nil keeps the
	// zone of the session's start time.
	Location *time.Location
}

func DefaultOptions() Options {
	return Options{
		RecentDays:    3,
		PastLimit:     5,
		NearMissLimit: 3,
		MaxChars:      1200,
	}
}

const closingNote = "※過去の記録は参考情報です。今日の作業で実際に想定される危険を優先して聞き取ってください。"

type Injector struct {
	store  HistoryStore
	opts   Options
	logger logger.ILogger
	now    func() time.Time
}

func NewInjector(historyStore HistoryStore, opts Options, log logger.ILogger) *Injector {
	defaults := DefaultOptions()
	if opts.RecentDays <= 0 {
		opts.RecentDays = defaults.RecentDays
	}
	if opts.PastLimit <= 0 {
		opts.PastLimit = defaults.PastLimit
	}
	if opts.NearMissLimit <= 0 {
		opts.NearMissLimit = defaults.NearMissLimit
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	return &Injector{
		store:  historyStore,
		opts:   opts,
		logger: log,
		now:    time.Now,
	}
}

// Build queries the three history views concurrently and renders them. A
// failing view is logged and left out; only cancellation is returned.
func (i *Injector) Build(ctx context.Context, session store.Session, userText string) (string, error) {
	filter := Filter{
		SiteName:         session.SiteName,
		SimilarTo:        textnorm.Normalize(userText),
		ExcludeSessionID: session.ID,
	}

	var recent, past []RiskRecord
	var nearMisses []NearMissRecord

	if i.store != nil {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			records, err := i.store.GetRecentRisks(egCtx, i.opts.RecentDays, filter)
			if err != nil {
				i.warn("recent risks unavailable", err)
				return nil
			}
			recent = excludeSession(records, session.ID)
			return nil
		})
		eg.Go(func() error {
			records, err := i.store.GetPastRisks(egCtx, i.opts.PastLimit, filter)
			if err != nil {
				i.warn("past risks unavailable", err)
				return nil
			}
			past = excludeSession(records, session.ID)
			return nil
		})
		eg.Go(func() error {
			records, err := i.store.GetHiyariHattoItems(egCtx, i.opts.NearMissLimit, filter)
			if err != nil {
				i.warn("near-miss notes unavailable", err)
				return nil
			}
			for _, r := range records {
				if r.SessionID != session.ID && strings.TrimSpace(r.Note) != "" {
					nearMisses = append(nearMisses, r)
				}
			}
			return nil
		})
		_ = eg.Wait()
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	recent = RankBySimilarity(recent, filter.SimilarTo)
	past = RankBySimilarity(past, filter.SimilarTo)
	if len(past) > i.opts.PastLimit {
		past = past[:i.opts.PastLimit]
	}
	if len(nearMisses) > i.opts.NearMissLimit {
		nearMisses = nearMisses[:i.opts.NearMissLimit]
	}

	var sections []string
	if len(recent) > 0 {
		sections = append(sections, formatRisks(fmt.Sprintf("【直近%d日間の同じ現場の危険】", i.opts.RecentDays), recent))
	}
	if len(past) > 0 {
		sections = append(sections, formatRisks("【過去の同じ現場の危険】", past))
	}
	if len(nearMisses) > 0 {
		sections = append(sections, formatNearMisses(nearMisses))
	}
	if len(sections) > 0 {
		sections = append(sections, closingNote)
	}

	day := session.WorkStartTime
	if day.IsZero() {
		day = i.now()
	}
	if i.opts.Location != nil {
		day = day.In(i.opts.Location)
	}
	if note := DayOfWeekNote(day.Weekday()); note != "" {
		sections = append(sections, note)
	}
	if note := WeatherNote(session.Weather, session.Temperature); note != "" {
		sections = append(sections, note)
	}

	return Truncate(strings.Join(sections, "\n"), i.opts.MaxChars), nil
}

func (i *Injector) warn(message string, err error) {
	if i.logger == nil {
		return
	}
	i.logger.Warn(moduleName, message, map[string]interface{}{"error": err.Error()})
}

func excludeSession(records []RiskRecord, sessionID string) []RiskRecord {
	out := make([]RiskRecord, 0, len(records))
	for _, r := range records {
		if r.SessionID == sessionID {
			continue
		}
		out = append(out, r)
	}
	return out
}

func formatRisks(title string, records []RiskRecord) string {
	var sb strings.Builder
	sb.WriteString(title)
	for _, r := range records {
		sb.WriteString("\n- ")
		if r.WorkDescription != "" {
			sb.WriteString(r.WorkDescription)
			sb.WriteString(": ")
		}
		sb.WriteString(r.HazardDescription)
		if r.RiskLevel > 0 {
			sb.WriteString(fmt.Sprintf(" (危険度%d)", r.RiskLevel))
		}
		if len(r.Countermeasures) > 0 {
			sb.WriteString(" / 対策: ")
			sb.WriteString(strings.Join(r.Countermeasures, "、"))
		}
	}
	return sb.String()
}

func formatNearMisses(records []NearMissRecord) string {
	var sb strings.Builder
	sb.WriteString("【過去のヒヤリハット】")
	for _, r := range records {
		sb.WriteString("\n- ")
		if !r.ReportedAt.IsZero() {
			sb.WriteString(r.ReportedAt.Format("2006-01-02"))
			sb.WriteString(": ")
		}
		sb.WriteString(strings.TrimSpace(r.Note))
	}
	return sb.String()
}

// Truncate is a hard cut at max characters. It may split a sentence.
func Truncate(text string, max int) string {
	return textnorm.Truncate(text, max)
}
