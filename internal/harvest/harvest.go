package harvest

import (
	"context"

	"github.com/postpulse/postpulse/internal/engagement"
)

// Harvester fetches one post page and buckets its text fragments into a
// RawPayload. On error the payload is zero-valued and must not be resolved;
// callers report the failure as a collection_failed record instead. No
// assumption is made about how fragments are gathered; headless browser
// and static HTML harvesters both satisfy this.
type Harvester interface {
	Harvest(ctx context.Context, postURL string) (engagement.RawPayload, error)
}
