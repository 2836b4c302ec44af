package application

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"bamboo-api-client/internal/domain"
	"bamboo-api-client/internal/infrastructure"
)

// Scanner walks a Bamboo server through BambooClient and prints what it finds.
// Matches go to out, one line each; progress and failures go to the logger.
type Scanner struct {
	client *infrastructure.BambooClient
	out    io.Writer
	logger zerolog.Logger
}

// NewScanner creates a new Scanner instance.
func NewScanner(client *infrastructure.BambooClient, out io.Writer, logger zerolog.Logger) *Scanner {
	return &Scanner{
		client: client,
		out:    out,
		logger: logger,
	}
}

// ScanOptions selects which branch and which variable ScanBranchVariables reports.
type ScanOptions struct {
	// Branch is matched against each branch's shortName.
	Branch string
	// VariableIndex picks the span inside the first variable value cell.
	VariableIndex int
	// SkipValue suppresses branches whose variable equals it. Empty means domain.DefaultSkipValue.
	SkipValue string
}

// ScanBranchVariables visits every plan, finds its branches named opts.Branch
// and prints the scraped branch variable of each one that differs from
// opts.SkipValue. It returns the number of lines printed.
func (s *Scanner) ScanBranchVariables(ctx context.Context, opts ScanOptions) (int, error) {
	if opts.Branch == "" {
		return 0, fmt.Errorf("branch is required")
	}
	if opts.SkipValue == "" {
		opts.SkipValue = domain.DefaultSkipValue
	}

	matches := 0
	plans := s.client.GetPlans(ctx, infrastructure.PlansOptions{})
	for plan := range plans.All() {
		planKey := planKeyOf(plan)
		if planKey == "" {
			s.logger.Warn().Msg("Skipping plan without a key")
			continue
		}

		branches := s.client.GetBranches(ctx, planKey, infrastructure.BranchesOptions{})
		for branch := range branches.All() {
			if branch.String("shortName") != opts.Branch {
				continue
			}

			key := branch.String("key")
			value, found, err := s.client.GetBranchVariable(ctx, key, opts.VariableIndex)
			if err != nil {
				return matches, fmt.Errorf("failed to read variables of %s: %w", key, err)
			}
			if !found {
				s.logger.Debug().Str("branch_key", key).Msg("Branch has no variable at index")
				continue
			}
			if value == opts.SkipValue {
				continue
			}

			fmt.Fprintf(s.out, "NAME= %s BRANCH KEY= %s --> firstVariable=%s\n", branch.String("name"), key, value)
			matches++
		}
		if err := branches.Err(); err != nil {
			return matches, fmt.Errorf("failed to list branches of %s: %w", planKey, err)
		}
	}
	if err := plans.Err(); err != nil {
		return matches, fmt.Errorf("failed to list plans: %w", err)
	}

	s.logger.Info().Int("matches", matches).Str("branch", opts.Branch).Msg("Branch variable scan finished")
	return matches, nil
}

// SearchLabels prints every build tagged with any of labels once, as
// "projectKey planKey buildKey". It returns the distinct builds in the order
// they were first seen.
func (s *Scanner) SearchLabels(ctx context.Context, labels []string) ([]domain.LabeledBuild, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("at least one label is required")
	}

	seen := make(map[domain.LabeledBuild]struct{})
	var builds []domain.LabeledBuild

	it := s.client.GetBuildsByLabel(ctx, labels...)
	for it.Next() {
		b := it.Build()
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		builds = append(builds, b)
		fmt.Fprintf(s.out, "%s %s %s\n", b.ProjectKey, b.PlanKey, b.BuildKey)
	}
	if err := it.Err(); err != nil {
		return builds, fmt.Errorf("failed to search labels: %w", err)
	}

	s.logger.Info().Strs("labels", labels).Int("builds", len(builds)).Msg("Label search finished")
	return builds, nil
}

// ListPlans prints one plan key per line and returns how many were printed.
func (s *Scanner) ListPlans(ctx context.Context) (int, error) {
	count := 0
	plans := s.client.GetPlans(ctx, infrastructure.PlansOptions{})
	for plan := range plans.All() {
		fmt.Fprintln(s.out, planKeyOf(plan))
		count++
	}
	if err := plans.Err(); err != nil {
		return count, fmt.Errorf("failed to list plans: %w", err)
	}
	return count, nil
}

// planKeyOf reads planKey.key, falling back to the top-level key.
func planKeyOf(plan domain.Record) string {
	if key := plan.String("planKey", "key"); key != "" {
		return key
	}
	return plan.String("key")
}
