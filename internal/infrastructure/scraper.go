package infrastructure

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"bamboo-api-client/internal/domain"
)

// Markup hooks on Bamboo's browser pages.
const (
	statusIconSelector    = "span.aui-icon, span.aui-icon-small"
	nextPageSelector      = "a.nextLink"
	variableValueSelector = "td.variable-value-container"
)

// parseLabelPage extracts the builds listed on one page of the label search and
// reports whether the page links to a next one.
//
// Each build sits in a table cell holding a status icon followed by three
// links: project, plan and build. Cells with fewer than three links are skipped.
// A cell holding several status icons yields its build once, not once per icon.
func parseLabelPage(body []byte) ([]domain.LabeledBuild, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse label page: %w", err)
	}

	var builds []domain.LabeledBuild
	seen := make(map[*html.Node]struct{})
	doc.Find(statusIconSelector).Each(func(_ int, icon *goquery.Selection) {
		cell := icon.Closest("td")
		if cell.Length() == 0 {
			return
		}
		if _, ok := seen[cell.Get(0)]; ok {
			return
		}
		seen[cell.Get(0)] = struct{}{}

		links := cell.Find("a")
		if links.Length() < 3 {
			return
		}
		builds = append(builds, domain.LabeledBuild{
			ProjectKey: hrefBase(links.Eq(0)),
			PlanKey:    hrefBase(links.Eq(1)),
			BuildKey:   hrefBase(links.Eq(2)),
		})
	})

	hasNext := doc.Find(nextPageSelector).Length() > 0
	return builds, hasNext, nil
}

// hrefBase returns the last path segment of a link's href.
func hrefBase(link *goquery.Selection) string {
	href, _ := link.Attr("href")
	if u, err := url.Parse(href); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(href)
}

// LabelIterator walks the paged label search results for one or more labels.
// Like Iterator it is lazy and single-pass. A build tagged with several of the
// requested labels is produced once per label; callers de-duplicate.
type LabelIterator struct {
	client    *BambooClient
	ctx       context.Context
	labels    []string
	label     int
	pageIndex int
	buffer    []domain.LabeledBuild
	pos       int
	current   domain.LabeledBuild
	done      bool
	err       error
}

// GetBuildsByLabel searches builds by label through the browser-facing
// viewBuildsForLabel action, since the REST API offers no label search.
func (c *BambooClient) GetBuildsByLabel(ctx context.Context, labels ...string) *LabelIterator {
	return &LabelIterator{
		client: c,
		ctx:    ctx,
		labels: labels,
	}
}

// Next advances to the next build. It returns false at the end of the results
// or on error; check Err.
func (it *LabelIterator) Next() bool {
	for {
		if it.done {
			return false
		}

		if it.pos < len(it.buffer) {
			it.current = it.buffer[it.pos]
			it.pos++
			return true
		}

		if it.label >= len(it.labels) {
			it.done = true
			return false
		}

		if err := it.fetch(); err != nil {
			it.err = err
			it.done = true
			return false
		}
	}
}

// Build returns the build Next moved to.
func (it *LabelIterator) Build() domain.LabeledBuild {
	return it.current
}

// Err returns the error that stopped the iteration, if any.
func (it *LabelIterator) Err() error {
	return it.err
}

func (it *LabelIterator) fetch() error {
	if it.pageIndex == 0 {
		it.pageIndex = 1
	}
	label := it.labels[it.label]

	params := url.Values{
		"labelName": {label},
		"pageIndex": {strconv.Itoa(it.pageIndex)},
	}
	body, err := it.client.get(it.ctx, it.client.URL(BuildsForLabelAction), params)
	if err != nil {
		return err
	}

	builds, hasNext, err := parseLabelPage(body)
	if err != nil {
		return err
	}
	pagesTotal.WithLabelValues("label_builds").Inc()

	it.client.logger.Debug().
		Str("label", label).
		Int("page_index", it.pageIndex).
		Int("builds", len(builds)).
		Bool("has_next", hasNext).
		Msg("Fetched label page")

	it.buffer = builds
	it.pos = 0
	it.pageIndex++
	if !hasNext {
		it.label++
		it.pageIndex = 0
	}
	return nil
}

// GetBranchVariable scrapes the branch variables admin page of buildKey and
// returns the text of the index-th value in the first variables cell.
// found is false when the page lists no variables or fewer than index+1.
func (c *BambooClient) GetBranchVariable(ctx context.Context, buildKey string, index int) (value string, found bool, err error) {
	params := url.Values{"buildKey": {buildKey}}
	body, err := c.send(ctx, http.MethodGet, c.URL(BranchVariablesAction), params, nil, "", "text/html")
	if err != nil {
		return "", false, err
	}

	value, found, err = parseBranchVariable(body, index)
	if err != nil {
		return "", false, fmt.Errorf("branch %s: %w", buildKey, err)
	}
	return value, found, nil
}

func parseBranchVariable(body []byte, index int) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to parse variables page: %w", err)
	}

	cell := doc.Find(variableValueSelector).First()
	if cell.Length() == 0 || index < 0 {
		return "", false, nil
	}

	spans := cell.Find("span")
	if index >= spans.Length() {
		return "", false, nil
	}
	return strings.TrimSpace(spans.Eq(index).Text()), true, nil
}
