package logfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog/log"
)

const (
	baseName       = "usage.log"
	timeLayout     = "2006-01-02 15:04:05,000"
	fileDateLayout = "20060102"
	retention      = 400 * 24 * time.Hour
)

var linePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3})\s\w+:\s(.+)$`)

// UsageRepository appends usage lines to a daily-rotated log file and parses them back
type UsageRepository struct {
	dir    string
	writer *rotatelogs.RotateLogs
	clock  rotatelogs.Clock
	mu     sync.Mutex
}

// Option configures the repository
type Option func(*UsageRepository)

// WithClock overrides the time source used for timestamps and rotation
func WithClock(clock rotatelogs.Clock) Option {
	return func(r *UsageRepository) { r.clock = clock }
}

// NewUsageRepository opens dir/usage.log.YYYYMMDD for appending; dir/usage.log links to today's file
func NewUsageRepository(dir string, opts ...Option) (*UsageRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &UsageRepository{dir: dir, clock: rotatelogs.UTC}
	for _, opt := range opts {
		opt(r)
	}

	writer, err := rotatelogs.New(
		filepath.Join(dir, baseName+".%Y%m%d"),
		rotatelogs.WithLinkName(filepath.Join(dir, baseName)),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(retention),
		rotatelogs.WithClock(r.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage log: %w", err)
	}
	r.writer = writer

	return r, nil
}

// Append writes one "timestamp INFO: actor/tokens/seconds" line
func (r *UsageRepository) Append(_ context.Context, record domain.UsageRecord) error {
	ts := record.RecordedAt
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	line := fmt.Sprintf("%s INFO: %s\n", ts.UTC().Format(timeLayout), record.LogLine())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.writer.Write([]byte(line)); err != nil {
		return fmt.Errorf("failed to write usage line: %w", err)
	}
	return nil
}

// ListBetween parses every rotated file whose date falls in [from, to] and returns the records inside the range
func (r *UsageRepository) ListBetween(_ context.Context, from, to time.Time) ([]domain.UsageRecord, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, baseName+".*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}

	fromDay := truncateDay(from)
	toDay := truncateDay(to)

	var records []domain.UsageRecord
	for _, file := range files {
		suffix := strings.TrimPrefix(filepath.Base(file), baseName+".")
		fileDay, err := time.ParseInLocation(fileDateLayout, suffix, time.UTC)
		if err != nil {
			continue
		}
		if fileDay.Before(fromDay) || fileDay.After(toDay) {
			continue
		}

		recs, err := parseFile(file)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Msg("Skipping unreadable usage log")
			continue
		}
		for _, rec := range recs {
			if rec.RecordedAt.Before(from) || rec.RecordedAt.After(to) {
				continue
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// Close closes the current log file
func (r *UsageRepository) Close() error {
	return r.writer.Close()
}

func parseFile(path string) ([]domain.UsageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []domain.UsageRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, ok := ParseLine(scanner.Text())
		if ok {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}

// ParseLine parses one usage log line. Malformed lines report false.
func ParseLine(line string) (domain.UsageRecord, bool) {
	m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return domain.UsageRecord{}, false
	}

	ts, err := time.ParseInLocation(timeLayout, m[1], time.UTC)
	if err != nil {
		return domain.UsageRecord{}, false
	}

	parts := strings.Split(m[2], "/")
	if len(parts) != 3 {
		return domain.UsageRecord{}, false
	}
	tokens, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.UsageRecord{}, false
	}
	elapsed, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return domain.UsageRecord{}, false
	}

	return domain.UsageRecord{
		ActorID:        parts[0],
		Tokens:         tokens,
		ElapsedSeconds: elapsed,
		RecordedAt:     ts,
	}, true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
