package observability

import (
	"sync"
	"sync/atomic"
)

type StatsSnapshot struct {
	PagesHarvested     uint64            `json:"pages_harvested"`
	PayloadsResolved   uint64            `json:"payloads_resolved"`
	NoSignalResults    uint64            `json:"no_signal_results"`
	CollectionFailures uint64            `json:"collection_failures"`
	ErrorsTotal        uint64            `json:"errors_total"`
	HarvestSecondsAvg  float64           `json:"harvest_seconds_avg"`
	ResolveOutcomes    map[string]uint64 `json:"resolve_outcomes,omitempty"`
	ErrorsByType       map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByComponent  map[string]uint64 `json:"errors_by_component,omitempty"`
}

var (
	pagesHarvested     uint64
	payloadsResolved   uint64
	noSignalResults    uint64
	collectionFailures uint64
	errorsTotal        uint64

	harvestCount uint64
	harvestNanos uint64

	statsMu           sync.Mutex
	resolveOutcomes   = map[string]uint64{}
	errorsByType      = map[string]uint64{}
	errorsByComponent = map[string]uint64{}
)

func IncPagesHarvested(_ string) {
	atomic.AddUint64(&pagesHarvested, 1)
}

func IncPayloadsResolved(status string) {
	atomic.AddUint64(&payloadsResolved, 1)
	if status == "no_signal" {
		atomic.AddUint64(&noSignalResults, 1)
	}
	if status == "" {
		status = "unknown"
	}
	statsMu.Lock()
	resolveOutcomes[status]++
	statsMu.Unlock()
}

func IncCollectionFailure() {
	atomic.AddUint64(&collectionFailures, 1)
}

func ObserveHarvestDuration(_ string, seconds float64) {
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&harvestCount, 1)
	atomic.AddUint64(&harvestNanos, uint64(seconds*1e9))
}

func IncError(errType, component string) {
	if errType == "" {
		errType = "unknown"
	}
	if component == "" {
		component = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByComponent[component]++
	statsMu.Unlock()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	outcomesCopy := copyMap(resolveOutcomes)
	errorsTypeCopy := copyMap(errorsByType)
	errorsComponentCopy := copyMap(errorsByComponent)
	statsMu.Unlock()

	count := atomic.LoadUint64(&harvestCount)
	avg := 0.0
	if count > 0 {
		avg = float64(atomic.LoadUint64(&harvestNanos)) / float64(count) / 1e9
	}

	return StatsSnapshot{
		PagesHarvested:     atomic.LoadUint64(&pagesHarvested),
		PayloadsResolved:   atomic.LoadUint64(&payloadsResolved),
		NoSignalResults:    atomic.LoadUint64(&noSignalResults),
		CollectionFailures: atomic.LoadUint64(&collectionFailures),
		ErrorsTotal:        atomic.LoadUint64(&errorsTotal),
		HarvestSecondsAvg:  avg,
		ResolveOutcomes:    outcomesCopy,
		ErrorsByType:       errorsTypeCopy,
		ErrorsByComponent:  errorsComponentCopy,
	}
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
