package pipeline

import "github.com/rivergate/chronicle/enrichment"

// enrichedSummary is the canonical container convertEnrichedRows converts
// every enrichment.Result batch into. It is the single conversion point
// for the worker's tabular output (REDESIGN FLAGS: no nested per-call-site
// type-switch cascades over the upstream result shape).
type enrichedSummary struct {
	Processed int
	Failed    int
	DocIDs    []string
	Errors    []error
}

// convertEnrichedRows is the one place a []enrichment.Result is turned
// into the shape the runner acts on: every worker returns exactly this
// type, so there is exactly one conversion path regardless of which
// worker kind produced the batch.
func convertEnrichedRows(rows []enrichment.Result) enrichedSummary {
	var s enrichedSummary
	for _, r := range rows {
		if r.Err != nil {
			s.Failed++
			s.Errors = append(s.Errors, r.Err)
			continue
		}
		s.Processed++
		if r.DocID != "" {
			s.DocIDs = append(s.DocIDs, r.DocID)
		}
	}
	return s
}
