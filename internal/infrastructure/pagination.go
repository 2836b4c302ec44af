package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"bamboo-api-client/internal/domain"
)

// DefaultMaxResult is the page size requested when the caller does not set one.
const DefaultMaxResult = 25

// Termination selects how an Iterator decides whether another page exists.
type Termination int

const (
	// IndexBounded fetches while the next start-index is below the envelope's
	// size, advancing by the envelope's max-result.
	IndexBounded Termination = iota

	// SizeSentinel fetches until a page reports size 0, advancing by that
	// page's size.
	SizeSentinel

	// SinglePage issues exactly one request and sends no paging parameters.
	SinglePage
)

// String returns the name used in logs.
func (t Termination) String() string {
	switch t {
	case IndexBounded:
		return "index-bounded"
	case SizeSentinel:
		return "size-sentinel"
	case SinglePage:
		return "single-page"
	default:
		return "unknown"
	}
}

// Query is the pagination cursor sent with each page request.
type Query struct {
	MaxResult  int
	StartIndex int
}

// Values returns the cursor as Bamboo query parameters.
func (q Query) Values() url.Values {
	return url.Values{
		"max-result":  {strconv.Itoa(q.MaxResult)},
		"start-index": {strconv.Itoa(q.StartIndex)},
	}
}

// Page is one decoded page of results.
// StartIndex is what the server echoed back; for envelopes that do not echo
// it, the requested start index is used.
type Page struct {
	Size       int
	MaxResult  int
	StartIndex int
	Items      []domain.Record
}

// envelope says where the page metadata and the items live in a response.
// An empty container means the metadata sits at the top level; an empty items
// key means the whole body is a bare JSON array.
type envelope struct {
	container string
	items     string
}

var (
	plansEnvelope       = envelope{container: "plans", items: "plan"}
	branchesEnvelope    = envelope{container: "branches", items: "branch"}
	resultsEnvelope     = envelope{container: "results", items: "result"}
	environmentEnvelope = envelope{items: "results"}
	arrayEnvelope       = envelope{}
)

type envelopeMeta struct {
	Size       *int `json:"size"`
	MaxResult  *int `json:"max-result"`
	StartIndex *int `json:"start-index"`
}

// decodePage extracts the page metadata and items from body.
// Missing keys are reported as errors; nothing is defaulted except an absent
// start-index, which is taken to be the requested one.
func decodePage(body []byte, env envelope, termination Termination, requested Query) (*Page, error) {
	if env.items == "" {
		var items []domain.Record
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &Page{Size: len(items), MaxResult: len(items), Items: items}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.container != "" {
		raw, ok := fields[env.container]
		if !ok {
			return nil, fmt.Errorf("response missing key %q", env.container)
		}
		fields = nil
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", env.container, err)
		}
	}

	rawItems, ok := fields[env.items]
	if !ok {
		return nil, fmt.Errorf("response missing key %q", env.items)
	}

	page := &Page{}
	if err := json.Unmarshal(rawItems, &page.Items); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", env.items, err)
	}

	var meta envelopeMeta
	for key, dst := range map[string]**int{"size": &meta.Size, "max-result": &meta.MaxResult, "start-index": &meta.StartIndex} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", key, err)
		}
		*dst = &n
	}

	if meta.Size == nil {
		return nil, fmt.Errorf("response missing key %q", "size")
	}
	page.Size = *meta.Size

	if meta.MaxResult != nil {
		page.MaxResult = *meta.MaxResult
	} else if termination == IndexBounded {
		return nil, fmt.Errorf("response missing key %q", "max-result")
	}

	page.StartIndex = requested.StartIndex
	if meta.StartIndex != nil {
		page.StartIndex = *meta.StartIndex
	}

	return page, nil
}

// pageRequest describes one paginated resource listing.
type pageRequest struct {
	resource    string
	url         string
	params      url.Values
	envelope    envelope
	termination Termination
	maxResult   int
}

// Iterator is a lazy, forward-only sequence of records backed by paged
// requests. Nothing is fetched until the first call to Next, and an exhausted
// Iterator cannot be restarted; call the client method again for a fresh one.
//
// An Iterator is not safe for concurrent use.
type Iterator struct {
	client  *BambooClient
	ctx     context.Context
	req     pageRequest
	cursor  Query
	page    *Page
	pos     int
	current domain.Record
	pages   int
	done    bool
	err     error
}

func newIterator(ctx context.Context, client *BambooClient, req pageRequest) *Iterator {
	if req.maxResult <= 0 {
		req.maxResult = DefaultMaxResult
	}
	return &Iterator{
		client: client,
		ctx:    ctx,
		req:    req,
		cursor: Query{MaxResult: req.maxResult},
	}
}

// Next advances to the next record, fetching a page when the current one is
// used up. It returns false when the sequence ends or a request fails; check
// Err to tell the two apart.
func (it *Iterator) Next() bool {
	for {
		if it.done {
			return false
		}

		if it.page != nil && it.pos < len(it.page.Items) {
			it.current = it.page.Items[it.pos]
			it.pos++
			return true
		}

		if it.page != nil && !it.advance() {
			it.finish()
			return false
		}

		ok, err := it.fetch()
		if err != nil {
			it.err = err
			it.finish()
			return false
		}
		if !ok {
			it.finish()
			return false
		}
	}
}

// Record returns the record Next moved to.
func (it *Iterator) Record() domain.Record {
	return it.current
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Cursor returns the pagination state for the next page request.
func (it *Iterator) Cursor() Query {
	return it.cursor
}

// Pages returns how many pages have been fetched so far.
func (it *Iterator) Pages() int {
	return it.pages
}

// All adapts the iterator for range-over-func. It shares state with the
// Iterator, so ranging a second time yields nothing. Check Err afterwards.
func (it *Iterator) All() iter.Seq[domain.Record] {
	return func(yield func(domain.Record) bool) {
		for it.Next() {
			if !yield(it.Record()) {
				return
			}
		}
	}
}

// Collect drains the iterator into a slice.
func (it *Iterator) Collect() ([]domain.Record, error) {
	var records []domain.Record
	for it.Next() {
		records = append(records, it.Record())
	}
	return records, it.Err()
}

// advance moves the cursor past the current page and reports whether another
// page should be requested.
func (it *Iterator) advance() bool {
	switch it.req.termination {
	case IndexBounded:
		if it.page.MaxResult <= 0 {
			it.client.logger.Warn().
				Str("resource", it.req.resource).
				Int("start_index", it.cursor.StartIndex).
				Msg("Server returned non-positive max-result, stopping iteration")
			return false
		}
		it.cursor.StartIndex += it.page.MaxResult
		return it.cursor.StartIndex < it.page.Size
	case SizeSentinel:
		if it.page.Size == 0 {
			return false
		}
		it.cursor.StartIndex += it.page.Size
		return true
	default:
		return false
	}
}

// fetch requests the page at the cursor. It returns false without an error
// when the server echoed an earlier start-index than was asked for.
func (it *Iterator) fetch() (bool, error) {
	params := url.Values{}
	for k, v := range it.req.params {
		params[k] = v
	}
	if it.req.termination != SinglePage {
		for k, v := range it.cursor.Values() {
			params[k] = v
		}
	}

	body, err := it.client.get(it.ctx, it.req.url, params)
	if err != nil {
		return false, err
	}

	page, err := decodePage(body, it.req.envelope, it.req.termination, it.cursor)
	if err != nil {
		return false, err
	}

	it.pages++
	pagesTotal.WithLabelValues(it.req.resource).Inc()

	it.client.logger.Debug().
		Str("resource", it.req.resource).
		Str("termination", it.req.termination.String()).
		Int("start_index", it.cursor.StartIndex).
		Int("echoed_start_index", page.StartIndex).
		Int("max_result", page.MaxResult).
		Int("size", page.Size).
		Int("items", len(page.Items)).
		Msg("Fetched page")

	if page.StartIndex < it.cursor.StartIndex {
		paginationAbortsTotal.WithLabelValues(it.req.resource).Inc()
		it.client.logger.Warn().
			Str("resource", it.req.resource).
			Int("requested_start_index", it.cursor.StartIndex).
			Int("echoed_start_index", page.StartIndex).
			Msg("Server reset pagination, stopping iteration")
		return false, nil
	}

	it.page = page
	it.pos = 0
	return true, nil
}

func (it *Iterator) finish() {
	it.done = true
	it.page = nil
	it.current = nil
}
