package usage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Rrens/slack-gpt/internal/domain"
)

// DefaultPricePerToken is the gpt-3.5-turbo price in USD
const DefaultPricePerToken = 0.0000027

// Source reads usage records back for reporting
type Source interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.UsageRecord, error)
}

// Reporter builds month-to-date usage statistics
type Reporter struct {
	source        Source
	pricePerToken float64
	now           func() time.Time
}

// NewReporter creates a reporter over source
func NewReporter(source Source, pricePerToken float64) *Reporter {
	if pricePerToken <= 0 {
		pricePerToken = DefaultPricePerToken
	}
	return &Reporter{
		source:        source,
		pricePerToken: pricePerToken,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Cost converts a token count to USD
func (r *Reporter) Cost(tokens int) float64 {
	return float64(tokens) * r.pricePerToken
}

// MonthToDate returns every actor with records this month, sorted by actor ID.
// Each actor gets one entry per day from the 1st to today, zero-filled.
func (r *Reporter) MonthToDate(ctx context.Context) ([]domain.UserUsage, error) {
	now := r.now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	records, err := r.source.ListBetween(ctx, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	days := MonthDays(now)
	byActor := make(map[string]map[string]*domain.DayUsage)
	for _, rec := range records {
		day := rec.RecordedAt.UTC().Format(time.DateOnly)
		perDay, ok := byActor[rec.ActorID]
		if !ok {
			perDay = make(map[string]*domain.DayUsage, len(days))
			byActor[rec.ActorID] = perDay
		}
		du, ok := perDay[day]
		if !ok {
			du = &domain.DayUsage{Date: day}
			perDay[day] = du
		}
		du.Tokens += rec.Tokens
		du.ElapsedSeconds += round2(rec.ElapsedSeconds)
	}

	result := make([]domain.UserUsage, 0, len(byActor))
	for actorID, perDay := range byActor {
		u := domain.UserUsage{ActorID: actorID, Days: make([]domain.DayUsage, 0, len(days))}
		for _, day := range days {
			du := domain.DayUsage{Date: day}
			if got, ok := perDay[day]; ok {
				du.Tokens = got.Tokens
				du.ElapsedSeconds = round2(got.ElapsedSeconds)
			}
			u.Days = append(u.Days, du)
			u.TotalTokens += du.Tokens
			u.TotalElapsedSeconds += du.ElapsedSeconds
		}
		u.TotalElapsedSeconds = round2(u.TotalElapsedSeconds)
		u.Cost = r.Cost(u.TotalTokens)
		result = append(result, u)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ActorID < result[j].ActorID })
	return result, nil
}

// UserStats returns one actor's month-to-date usage
func (r *Reporter) UserStats(ctx context.Context, actorID string) (*domain.UserUsage, error) {
	all, err := r.MonthToDate(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ActorID == actorID {
			return &all[i], nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Ranking returns all actors ordered by total tokens, highest first
func (r *Reporter) Ranking(ctx context.Context) ([]domain.UserUsage, error) {
	all, err := r.MonthToDate(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TotalTokens > all[j].TotalTokens })
	return all, nil
}

// MonthDays lists every date from the first of now's month through now as YYYY-MM-DD
func MonthDays(now time.Time) []string {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	days := make([]string, 0, now.Day())
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(time.DateOnly))
	}
	return days
}

var dayTableWidths = []int{16, 15, 15}

// FormatDayTable renders days as a right-aligned ASCII table with a date/tokens/times header
func FormatDayTable(days []domain.DayUsage) string {
	rows := make([][]string, 0, len(days)+1)
	rows = append(rows, []string{"date", "tokens", "times"})
	for _, d := range days {
		rows = append(rows, []string{
			d.Date,
			strconv.Itoa(d.Tokens),
			strconv.FormatFloat(d.ElapsedSeconds, 'f', -1, 64),
		})
	}

	var sep strings.Builder
	sep.WriteString("+")
	for _, w := range dayTableWidths {
		sep.WriteString(strings.Repeat("-", w+1))
		sep.WriteString("+")
	}
	sep.WriteString("\n")

	var b strings.Builder
	b.WriteString(sep.String())
	for _, row := range rows {
		b.WriteString("|")
		for i, cell := range row {
			if pad := dayTableWidths[i] - utf8.RuneCountInString(cell); pad > 0 {
				b.WriteString(strings.Repeat(" ", pad))
			}
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
		b.WriteString(sep.String())
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
