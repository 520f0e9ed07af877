package engagement

// RawPayload is the bag of text fragments harvested from a single post page,
// bucketed by where on the page they came from. The resolver consumes it
// exactly once and never mutates it; how the fragments were harvested
// (headless browser, static HTML pass) is not its concern.
type RawPayload struct {
	// AggregateReactionCandidates are raw readings of the single
	// "all reactions" counter. Redundant DOM matches mean the same count
	// can appear several times in different formats.
	AggregateReactionCandidates []string

	// AggregateReactionPrimary is a late, non-authoritative reading of the
	// same counter; appended to the candidate list before resolution.
	AggregateReactionPrimary string

	// ItemizedReactionLabels hold per-category counts such as
	// "Like: 375 people". Categories are disjoint and summed.
	ItemizedReactionLabels []string

	CommentCountTexts []string
	ShareCountTexts   []string

	// FullText is the flattened page text, scanned only when no tagged
	// fragments exist for a metric.
	FullText string
}
