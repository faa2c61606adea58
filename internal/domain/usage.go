package domain

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one processed message's token consumption and latency
type UsageRecord struct {
	ID             uuid.UUID `json:"id"`
	ActorID        string    `json:"actor_id"`
	Tokens         int       `json:"tokens"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// LogLine renders the record as "actor_id/token_count/elapsed_seconds"
func (r UsageRecord) LogLine() string {
	return r.ActorID + "/" + strconv.Itoa(r.Tokens) + "/" + strconv.FormatFloat(r.ElapsedSeconds, 'f', -1, 64)
}

// UsageRepository is an append-only usage log that can be read back for reports
type UsageRepository interface {
	Append(ctx context.Context, record UsageRecord) error
	ListBetween(ctx context.Context, from, to time.Time) ([]UsageRecord, error)
	Close() error
}

// DayUsage aggregates one actor's usage for one calendar day
type DayUsage struct {
	Date           string  `json:"date"`
	Tokens         int     `json:"tokens"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// UserUsage aggregates one actor's usage for the current month
type UserUsage struct {
	ActorID             string     `json:"actor_id"`
	Days                []DayUsage `json:"days"`
	TotalTokens         int        `json:"total_tokens"`
	TotalElapsedSeconds float64    `json:"total_elapsed_seconds"`
	Cost                float64    `json:"cost"`
}

// BillingSummary is the month-to-date usage reported by the provider
type BillingSummary struct {
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// AdminLogin is the ops API login request
type AdminLogin struct {
	Password string `json:"password" validate:"required,max=72"`
}

// AccessToken is the ops API login response
type AccessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ImageRequest is a submitted draw-image dialog
type ImageRequest struct {
	ActorID     string `validate:"required"`
	Description string `validate:"required,max=1000"`
	Translate   bool
}
