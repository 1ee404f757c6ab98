package ingest

import (
	"context"
	"errors"
	"fmt"

	"stickytweets/internal/metrics"
	"stickytweets/internal/tweets"
	"stickytweets/internal/twitter"
)

// PageSize is the fixed number of statuses requested per search page.
const PageSize = 100

var ErrNoTerms = errors.New("no search terms")

// Searcher is the paginated search source.
type Searcher interface {
	Search(ctx context.Context, q twitter.SearchQuery) (twitter.SearchPage, error)
}

// Result summarizes one ingestion run. It is filled in as far as the run
// got, also when the run fails.
type Result struct {
	Pages    int
	Seen     int
	Inserted int
	Evicted  int
	Skipped  int
	Removed  int
}

// Stored counts records that ended up in the table.
func (r Result) Stored() int { return r.Inserted + r.Evicted }

// Harvester pages through a geocoded search and stores every geotagged hit.
type Harvester struct {
	source  Searcher
	writer  *tweets.Writer
	geocode string
}

// NewHarvester builds a harvester for the area given as "lat,lon,radiuskm".
func NewHarvester(source Searcher, writer *tweets.Writer, geocode string) *Harvester {
	return &Harvester{source: source, writer: writer, geocode: geocode}
}

// IngestAll queries the source for terms, stores each record of each page,
// follows continuation tokens until the source has no more pages, then runs
// one deduplication pass. Any search, continuation or record error aborts
// the run; rows already stored are kept.
func (h *Harvester) IngestAll(ctx context.Context, terms []string) (Result, error) {
	var res Result
	if len(terms) == 0 {
		return res, ErrNoTerms
	}
	q := twitter.SearchQuery{
		Terms:           terms,
		Count:           PageSize,
		Geocode:         h.geocode,
		ResultType:      "recent",
		IncludeEntities: true,
	}
	for {
		page, err := h.source.Search(ctx, q)
		if err != nil {
			return res, fmt.Errorf("search page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		metrics.SearchPages.Inc()
		for _, rec := range page.Statuses {
			res.Seen++
			out, err := h.writer.Store(ctx, rec)
			if err != nil {
				return res, fmt.Errorf("store status %s: %w", rec.ID, err)
			}
			metrics.Records.WithLabelValues(out.String()).Inc()
			switch out {
			case tweets.Inserted:
				res.Inserted++
			case tweets.Evicted:
				res.Evicted++
			default:
				res.Skipped++
			}
		}
		maxID, more, err := page.NextMaxID()
		if err != nil {
			return res, err
		}
		if !more {
			break
		}
		q.MaxID = maxID
	}
	removed, err := h.writer.Deduplicate(ctx)
	res.Removed = removed
	metrics.DuplicatesRemoved.Add(float64(removed))
	if err != nil {
		return res, err
	}
	return res, nil
}
