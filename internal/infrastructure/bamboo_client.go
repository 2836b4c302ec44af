package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bamboo-api-client/internal/domain"
)

// Bamboo endpoint templates. They are appended verbatim to host:port+prefix;
// placeholders are substituted without escaping.
const (
	BuildService          = "/rest/api/latest/result"
	ProjectService        = "rest/api/latest/project"
	DeployService         = "/rest/api/latest/deploy/project"
	EnvironmentService    = "/rest/api/latest/deploy/environment/{env_id}/results"
	PlanService           = "/rest/api/latest/plan"
	QueueService          = "/rest/api/latest/queue"
	ResultService         = "/rest/api/latest/result"
	ServerService         = "/rest/api/latest/server"
	BuildsForLabelAction  = "/build/label/viewBuildsForLabel.action"
	BranchService         = PlanService + "/{key}/branch"
	BranchResultService   = ResultService + "/{key}/branch/{branch_name}"
	DeleteAction          = "/chain/admin/deleteChain!doDelete.action"
	BranchVariablesAction = "/branch/admin/config/editChainBranchVariables.action"
)

const variablePrefix = "bamboo.variable."

// BambooClient is an adapter for the Bamboo web service API.
// Listing methods return lazy Iterators; mutating methods issue their request
// immediately. A BambooClient holds no per-iteration state, but the HTTPDoer
// it wraps must be safe for concurrent use if iterators run concurrently.
type BambooClient struct {
	conn       domain.Connection
	httpClient domain.HTTPDoer
	logger     zerolog.Logger
}

// NewBambooClient creates a new Bamboo API client.
// Empty connection fields fall back to http://localhost:8085 with no prefix.
// When httpClient is nil, a client authenticating with the connection's basic
// credentials (if any) is used.
func NewBambooClient(conn domain.Connection, httpClient domain.HTTPDoer, logger zerolog.Logger) *BambooClient {
	conn = conn.WithDefaults()
	if httpClient == nil {
		httpClient = domain.NewConnectionClient(conn)
	}
	return &BambooClient{
		conn:       conn,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "bamboo_client").Logger(),
	}
}

// Connection returns the connection parameters with defaults applied.
func (c *BambooClient) Connection() domain.Connection {
	return c.conn
}

// URL returns the full URL for an endpoint.
func (c *BambooClient) URL(endpoint string) string {
	return c.conn.URL(endpoint)
}

// expandTemplate substitutes {name} placeholders in an endpoint template.
func expandTemplate(template string, params map[string]string) string {
	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// withQuery appends encoded params to rawURL.
func withQuery(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params.Encode()
}

// get issues a GET expecting a JSON answer.
func (c *BambooClient) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	return c.send(ctx, http.MethodGet, rawURL, params, nil, "", "application/json")
}

// post issues a POST. A non-empty form is sent url-encoded as the body.
func (c *BambooClient) post(ctx context.Context, rawURL string, params url.Values, form url.Values) ([]byte, error) {
	var body io.Reader
	contentType := ""
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	return c.send(ctx, http.MethodPost, rawURL, params, body, contentType, "application/json")
}

// put issues a PUT without a body.
func (c *BambooClient) put(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	return c.send(ctx, http.MethodPut, rawURL, params, nil, "", "application/json")
}

// send executes a request and returns the response body. Any status other
// than 200 OK is returned as a *domain.HTTPError.
func (c *BambooClient) send(ctx context.Context, method, rawURL string, params url.Values, body io.Reader, contentType, accept string) ([]byte, error) {
	fullURL := withQuery(rawURL, params)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("method", method).
		Str("url", fullURL).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Bamboo request")

	if resp.StatusCode != http.StatusOK {
		if resp.Request == nil {
			resp.Request = req
		}
		return nil, domain.NewHTTPError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (domain.Record, error) {
	var record domain.Record
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return record, nil
}

// setVariables adds custom build variables as bamboo.variable.<name> parameters.
func setVariables(params url.Values, vars map[string]string) {
	for name, value := range vars {
		params.Set(variablePrefix+name, value)
	}
}

// PlansOptions filters GetPlans.
type PlansOptions struct {
	Expand    []string
	MaxResult int
}

// GetPlans iterates over every plan on the server.
func (c *BambooClient) GetPlans(ctx context.Context, opts PlansOptions) *Iterator {
	params := url.Values{}
	if len(opts.Expand) > 0 {
		params.Set("expand", BuildExpand(opts.Expand))
	}

	return newIterator(ctx, c, pageRequest{
		resource:    "plans",
		url:         c.URL(PlanService),
		params:      params,
		envelope:    plansEnvelope,
		termination: IndexBounded,
		maxResult:   opts.MaxResult,
	})
}

// BranchesOptions filters GetBranches.
type BranchesOptions struct {
	EnabledOnly bool
	MaxResult   int
}

// GetBranches iterates over the branches of a plan.
func (c *BambooClient) GetBranches(ctx context.Context, planKey string, opts BranchesOptions) *Iterator {
	params := url.Values{}
	if opts.EnabledOnly {
		params.Set("enabledOnly", "true")
	}

	return newIterator(ctx, c, pageRequest{
		resource:    "branches",
		url:         c.URL(expandTemplate(BranchService, map[string]string{"key": planKey})),
		params:      params,
		envelope:    branchesEnvelope,
		termination: IndexBounded,
		maxResult:   opts.MaxResult,
	})
}

// BuildsOptions filters GetBuilds. An empty PlanKey lists the latest build of
// every plan.
type BuildsOptions struct {
	PlanKey   string
	Labels    []string
	Expand    []string
	MaxResult int
}

// GetBuilds iterates over build results. Unlike the other listings it keeps
// requesting pages until the server reports a size of 0.
func (c *BambooClient) GetBuilds(ctx context.Context, opts BuildsOptions) *Iterator {
	params := url.Values{}
	if len(opts.Expand) > 0 {
		params.Set("expand", BuildExpand(opts.Expand))
	}
	if len(opts.Labels) > 0 {
		params.Set("label", strings.Join(opts.Labels, ","))
	}

	endpoint := c.URL(BuildService)
	if opts.PlanKey != "" {
		endpoint = fmt.Sprintf("%s/%s", endpoint, opts.PlanKey)
	}

	return newIterator(ctx, c, pageRequest{
		resource:    "builds",
		url:         endpoint,
		params:      params,
		envelope:    resultsEnvelope,
		termination: SizeSentinel,
		maxResult:   opts.MaxResult,
	})
}

// ResultsOptions filters GetResults. BuildNumber is only used together with
// PlanKey; with neither set, results for all plans are listed.
type ResultsOptions struct {
	PlanKey     string
	BuildNumber string
	Expand      []string
	MaxResult   int
}

// GetResults iterates over build results for a plan, a single build, or all plans.
func (c *BambooClient) GetResults(ctx context.Context, opts ResultsOptions) *Iterator {
	params := url.Values{}
	if len(opts.Expand) > 0 {
		params.Set("expand", BuildExpand(opts.Expand))
	}

	key := opts.PlanKey
	if key != "" && opts.BuildNumber != "" {
		key = key + "-" + opts.BuildNumber
	}
	if key == "" {
		key = "all"
	}

	return newIterator(ctx, c, pageRequest{
		resource:    "results",
		url:         fmt.Sprintf("%s/%s", c.URL(ResultService), key),
		params:      params,
		envelope:    resultsEnvelope,
		termination: IndexBounded,
		maxResult:   opts.MaxResult,
	})
}

// BranchResultsOptions filters GetBranchResults.
type BranchResultsOptions struct {
	Expand           []string
	Favorite         bool
	Labels           []string
	IssueKeys        []string
	IncludeAllStates bool
	Continuable      bool
	// BuildState is one of domain.ValidBuildStates, or empty for any state.
	BuildState string
	MaxResult  int
}

// GetBranchResults iterates over build results of a plan branch.
// An invalid BuildState is rejected with a *domain.ValidationError before any
// request is made.
func (c *BambooClient) GetBranchResults(ctx context.Context, planKey, branchName string, opts BranchResultsOptions) (*Iterator, error) {
	if err := domain.ValidateBuildState(opts.BuildState); err != nil {
		return nil, err
	}

	params := url.Values{}
	if len(opts.Expand) > 0 {
		params.Set("expand", BuildExpand(opts.Expand))
	}
	if opts.Favorite {
		params.Set("favorite", "true")
	}
	if len(opts.Labels) > 0 {
		params.Set("label", strings.Join(opts.Labels, ","))
	}
	if len(opts.IssueKeys) > 0 {
		params.Set("issueKey", strings.Join(opts.IssueKeys, ","))
	}
	if opts.IncludeAllStates {
		params.Set("includeAllStates", "true")
	}
	if opts.Continuable {
		params.Set("continuable", "true")
	}
	if opts.BuildState != "" {
		params.Set("build_state", opts.BuildState)
	}

	endpoint := expandTemplate(BranchResultService, map[string]string{
		"key":         planKey,
		"branch_name": branchName,
	})

	return newIterator(ctx, c, pageRequest{
		resource:    "branch_results",
		url:         c.URL(endpoint),
		params:      params,
		envelope:    resultsEnvelope,
		termination: IndexBounded,
		maxResult:   opts.MaxResult,
	}), nil
}

// GetDeployments iterates over deployment projects; an empty projectKey lists all
// of them. The server answers with a single unpaged array.
func (c *BambooClient) GetDeployments(ctx context.Context, projectKey string) *Iterator {
	if projectKey == "" {
		projectKey = "all"
	}

	return newIterator(ctx, c, pageRequest{
		resource:    "deployments",
		url:         fmt.Sprintf("%s/%s", c.URL(DeployService), projectKey),
		envelope:    arrayEnvelope,
		termination: SinglePage,
	})
}

// GetEnvironmentResults iterates over the deployment results of an environment.
func (c *BambooClient) GetEnvironmentResults(ctx context.Context, environmentID int, maxResult int) *Iterator {
	endpoint := expandTemplate(EnvironmentService, map[string]string{
		"env_id": strconv.Itoa(environmentID),
	})

	return newIterator(ctx, c, pageRequest{
		resource:    "environment_results",
		url:         c.URL(endpoint),
		envelope:    environmentEnvelope,
		termination: IndexBounded,
		maxResult:   maxResult,
	})
}

// DeletePlan deletes a plan or plan branch by its key.
func (c *BambooClient) DeletePlan(ctx context.Context, buildKey string) error {
	form := url.Values{"buildKey": {buildKey}}
	if _, err := c.post(ctx, c.URL(DeleteAction), nil, form); err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", buildKey, err)
	}

	c.logger.Info().Str("build_key", buildKey).Msg("Deleted plan")
	return nil
}

// QueueBuild queues a build of planKey, passing vars as custom build variables.
func (c *BambooClient) QueueBuild(ctx context.Context, planKey string, vars map[string]string) (domain.Record, error) {
	params := url.Values{}
	setVariables(params, vars)

	data, err := c.post(ctx, fmt.Sprintf("%s/%s", c.URL(QueueService), planKey), params, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// ContinueOptions controls ContinueBuild.
type ContinueOptions struct {
	Stage            string
	ExecuteAllStages bool
	Variables        map[string]string
}

// ContinueBuild resumes a partially built result, optionally up to a stage.
func (c *BambooClient) ContinueBuild(ctx context.Context, planKey string, buildNumber int, opts ContinueOptions) (domain.Record, error) {
	params := url.Values{}
	if opts.ExecuteAllStages {
		params.Set("executeAllStages", "true")
	}
	if opts.Stage != "" {
		params.Set("stage", opts.Stage)
	}
	setVariables(params, opts.Variables)

	data, err := c.put(ctx, fmt.Sprintf("%s/%s-%d", c.URL(QueueService), planKey, buildNumber), params)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// GetBuildQueue returns the builds currently queued.
func (c *BambooClient) GetBuildQueue(ctx context.Context) (domain.Record, error) {
	data, err := c.get(ctx, c.URL(QueueService), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// GetProjects returns the project listing.
func (c *BambooClient) GetProjects(ctx context.Context) (domain.Record, error) {
	data, err := c.get(ctx, c.URL(ProjectService), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// Pause pauses the server.
func (c *BambooClient) Pause(ctx context.Context) (domain.Record, error) {
	return c.serverAction(ctx, "pause")
}

// Resume resumes a paused server.
func (c *BambooClient) Resume(ctx context.Context) (domain.Record, error) {
	return c.serverAction(ctx, "resume")
}

func (c *BambooClient) serverAction(ctx context.Context, action string) (domain.Record, error) {
	data, err := c.post(ctx, fmt.Sprintf("%s/%s", c.URL(ServerService), action), nil, nil)
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("action", action).Msg("Server control request accepted")
	return decodeRecord(data)
}
