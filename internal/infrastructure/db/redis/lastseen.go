package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kaiin-app/authcore/internal/core/ports"
)

const lastSeenTTL = 30 * 24 * time.Hour

// LastSeenRecorder stores the last successful resolution timestamp per
// subject. Key format: lastseen:<subject_id>
//
// It runs as a post-resolution hook: failures are reported to the dispatcher
// and never reach the caller of Login/CurrentUser.
type LastSeenRecorder struct {
	client *redis.Client
}

// NewLastSeenRecorder creates a LastSeenRecorder wrapping the given Redis client.
func NewLastSeenRecorder(client *redis.Client) *LastSeenRecorder {
	return &LastSeenRecorder{client: client}
}

// Record updates the subject's last-seen timestamp. Sign-outs and failures
// are skipped; only successful resolutions count as activity.
func (r *LastSeenRecorder) Record(ctx context.Context, res ports.Resolution) error {
	switch res.Kind {
	case ports.ResolutionLogin, ports.ResolutionProvisioned, ports.ResolutionRefreshed:
	default:
		return nil
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	if err := r.client.Set(ctx, r.key(res.SubjectID), ts, lastSeenTTL).Err(); err != nil {
		return fmt.Errorf("last-seen set: %w", err)
	}
	return nil
}

func (r *LastSeenRecorder) key(subjectID string) string {
	return fmt.Sprintf("lastseen:%s", subjectID)
}
