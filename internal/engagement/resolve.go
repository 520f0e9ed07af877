package engagement

import "regexp"

// Status reports how a resolution ended. A no_signal result is ambiguous
// between genuinely zero engagement and a harvest that found nothing, and
// must be presented as uncertain rather than as a confirmed zero.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoSignal         Status = "no_signal"
	StatusCollectionFailed Status = "collection_failed"
)

// Metrics is the canonical engagement summary for one post. Total is always
// the exact sum of the other three counts.
type Metrics struct {
	Likes         int    `json:"likes"`
	Comments      int    `json:"comments"`
	Shares        int    `json:"shares"`
	Total         int    `json:"total"`
	Status        Status `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Aggregate counters at or above this are selector/OCR noise, not real
// reaction totals; they are discarded outright, never clamped.
const maxPlausibleAggregate = 1_000_000

var (
	itemizedCountPattern = regexp.MustCompile(`(?i):\s*([0-9.,KkMm]+)\s+people`)
	commentMentions      = regexp.MustCompile(`(?i)([0-9][0-9.,KkMm]*)\s+comments?`)
	shareMentions        = regexp.MustCompile(`(?i)([0-9][0-9.,KkMm]*)\s+shares?`)
)

// Resolve turns a harvested payload into final engagement metrics. It is a
// pure function: no I/O, no retained state, and the payload is left intact,
// so it is safe to call concurrently across payloads.
//
// Likes prefer the explicit aggregate counter (largest plausible candidate)
// and fall back to summing the itemized per-category labels. Comments and
// shares take the maximum over their tagged fragments (duplicates are
// re-readings of one UI counter, some truncated), falling back to a
// free-text scan when no fragment was tagged. The itemized labels are
// disjoint categories, which is why they are summed rather than maxed.
func Resolve(p RawPayload) Metrics {
	likes := resolveLikes(p)
	comments := resolveTagged(p.CommentCountTexts, p.FullText, commentMentions)
	shares := resolveTagged(p.ShareCountTexts, p.FullText, shareMentions)

	m := Metrics{
		Likes:    likes,
		Comments: comments,
		Shares:   shares,
		Total:    likes + comments + shares,
	}
	if m.Total == 0 {
		m.Status = StatusNoSignal
	} else {
		m.Status = StatusOK
	}
	return m
}

// CollectionFailure builds the all-zero record reported when the page could
// not be harvested at all. The resolver itself never produces this; it is
// the caller's encoding of a fetch-side failure.
func CollectionFailure(reason string) Metrics {
	return Metrics{Status: StatusCollectionFailed, FailureReason: reason}
}

func resolveLikes(p RawPayload) int {
	candidates := p.AggregateReactionCandidates
	if p.AggregateReactionPrimary != "" {
		// Copy before appending so the caller's slice is never aliased.
		candidates = append(append([]string(nil), candidates...), p.AggregateReactionPrimary)
	}

	aggregate := 0
	for _, c := range candidates {
		v := ParseCount(c)
		if v > 0 && v < maxPlausibleAggregate && v > aggregate {
			aggregate = v
		}
	}
	if aggregate > 0 {
		return aggregate
	}

	sum := 0
	for _, label := range p.ItemizedReactionLabels {
		m := itemizedCountPattern.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		sum += ParseCount(m[1])
	}
	return sum
}

func resolveTagged(tagged []string, fullText string, mention *regexp.Regexp) int {
	best := 0
	if len(tagged) > 0 {
		for _, t := range tagged {
			if v := ParseCount(t); v > best {
				best = v
			}
		}
		return best
	}
	for _, m := range mention.FindAllStringSubmatch(fullText, -1) {
		if v := ParseCount(m[1]); v > best {
			best = v
		}
	}
	return best
}
