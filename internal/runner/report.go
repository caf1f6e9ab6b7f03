package runner

import (
	"fmt"
	"strings"
	"time"

	"crosspost/internal/fanout"
	"crosspost/internal/storage"
)

// Report is the aggregate result of one run. Per-article detail stays in
// Results and in the logs; triggers only surface Summary.
type Report struct {
	RunID        string        `json:"run_id"`
	Trigger      Trigger       `json:"trigger"`
	StartedAt    time.Time     `json:"started_at"`
	Took         time.Duration `json:"took"`
	Destinations []string      `json:"destinations"`

	Articles int `json:"articles"`
	// Posted counts articles accepted by at least one destination.
	// MarkFailed is the subset of those whose posted flag was not saved.
	Posted     int    `json:"posted"`
	Unposted   int    `json:"unposted"`
	MarkFailed int    `json:"mark_failed"`
	Err        string `json:"error,omitempty"`

	Results []fanout.ArticleResult `json:"-"`
}

func (r *Report) add(results []fanout.ArticleResult) {
	r.Results = append(r.Results, results...)
	for _, res := range results {
		r.Articles++
		if !res.Posted {
			r.Unposted++
			continue
		}
		r.Posted++
		// Posted but not marked: the next run sees it as unposted again.
		if res.MarkErr != nil {
			r.MarkFailed++
		}
	}
}

// Summary is a one-line description suitable for HTTP responses.
func (r Report) Summary() string {
	if r.Articles == 0 {
		return fmt.Sprintf("run %s: no unposted articles", r.RunID)
	}
	s := fmt.Sprintf("run %s: %d articles, %d posted, %d unposted", r.RunID, r.Articles, r.Posted, r.Unposted)
	if r.MarkFailed > 0 {
		s += fmt.Sprintf(", %d not marked", r.MarkFailed)
	}
	if len(r.Destinations) > 0 {
		s += " via " + strings.Join(r.Destinations, ", ")
	}
	return s
}

// Record converts the report into its storage form.
func (r Report) Record() storage.RunRecord {
	return storage.RunRecord{
		RunID:     r.RunID,
		Trigger:   string(r.Trigger),
		StartedAt: r.StartedAt,
		TookMS:    r.Took.Milliseconds(),
		Articles:  r.Articles,
		Posted:    r.Posted,
		Failed:    r.Unposted + r.MarkFailed,
		Error:     r.Err,
	}
}
