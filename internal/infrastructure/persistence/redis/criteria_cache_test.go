package redis

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
)

func TestCriteriaCache_LogsFailures(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cc := NewCriteriaCache(&Cache{client: client}, 0, logger)
	ctx := context.Background()

	err := cc.SetCriteria(ctx, "abc", admission.Criteria{MinimumAverage: 10})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "criteria cache write failed")
	assert.Contains(t, buf.String(), `"fingerprint":"abc"`)

	_, err = cc.GetCriteria(ctx, "abc")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "criteria cache read failed")

	resolver := admission.NewCriteriaResolver(cc)
	_, hit := resolver.Resolve(ctx, admission.CatalogAttributes{Label: "BUT Informatique", Filiere: "BUT"})
	assert.False(t, hit)
	assert.Equal(t, int64(2), resolver.CacheFailures())
}
