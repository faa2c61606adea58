package mongo

import (
	"testing"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDocumentRoundTrip(t *testing.T) {
	rec := domain.UsageRecord{
		ID:             uuid.New(),
		ActorID:        "U1",
		Tokens:         42,
		ElapsedSeconds: 1.25,
		RecordedAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	raw, err := bson.Marshal(toDocument(rec))
	require.NoError(t, err)

	var doc usageDocument
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, rec, fromDocument(doc))

	var generic bson.M
	require.NoError(t, bson.Unmarshal(raw, &generic))
	assert.Equal(t, rec.ID.String(), generic["_id"])
	assert.Equal(t, "U1", generic["actor_id"])
}
