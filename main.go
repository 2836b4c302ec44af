package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bamboo-api-client/internal/application"
	"bamboo-api-client/internal/domain"
	"bamboo-api-client/internal/infrastructure"
	"bamboo-api-client/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cliOptions holds the flags shared by every command.
type cliOptions struct {
	configPath    string
	branch        string
	variableIndex int
}

// newRootCmd builds the bambooscan command tree. Scan output goes to out,
// logs go to logOut.
func newRootCmd(out, logOut io.Writer) *cobra.Command {
	opts := &cliOptions{variableIndex: -1}

	rootCmd := &cobra.Command{
		Use:   "bambooscan",
		Short: "Scan a Bamboo server",
		Long: "Scan a Bamboo server for branch variables and labelled builds\n" +
			"usage:\n" +
			"\tbambooscan [--branch develop]\n" +
			"\tbambooscan labels <label>...\n" +
			"\tbambooscan plans",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, out, logOut, func(ctx context.Context, s *application.Scanner, cfg *domain.Config) error {
				scan := application.ScanOptions{
					Branch:        cfg.Scan.Branch,
					VariableIndex: cfg.Scan.VariableIndex,
					SkipValue:     cfg.Scan.SkipValue,
				}
				if opts.branch != "" {
					scan.Branch = opts.branch
				}
				if opts.variableIndex >= 0 {
					scan.VariableIndex = opts.variableIndex
				}
				_, err := s.ScanBranchVariables(ctx, scan)
				return err
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVarP(&opts.branch, "branch", "b", "", "Branch short name to scan (overrides scan.branch)")
	rootCmd.Flags().IntVarP(&opts.variableIndex, "variable-index", "i", -1, "Branch variable to report (overrides scan.variable_index)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "labels <label>...",
			Short: "List builds tagged with any of the labels",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, out, logOut, func(ctx context.Context, s *application.Scanner, _ *domain.Config) error {
					_, err := s.SearchLabels(ctx, args)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "plans",
			Short: "List plan keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, opts, out, logOut, func(ctx context.Context, s *application.Scanner, _ *domain.Config) error {
					_, err := s.ListPlans(ctx)
					return err
				})
			},
		},
	)

	return rootCmd
}

// run loads the configuration, wires the client and scanner, runs fn and logs
// the request counters gathered during the run.
func run(cmd *cobra.Command, opts *cliOptions, out, logOut io.Writer, fn func(context.Context, *application.Scanner, *domain.Config) error) error {
	cfg, err := domain.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(logOut, "Failed to load configuration: %v\n", err)
		return err
	}

	base := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: logOut,
	})
	logger := logging.NewLogger("bambooscan")
	logger.Info().Str("config", opts.configPath).Str("host", cfg.Bamboo.Host).Msg("Configuration loaded")

	httpClient, err := domain.NewAuthenticatedClient(domain.CredentialsFromAuthConfig(cfg.Bamboo.Auth))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create authenticated client")
		return err
	}

	client := infrastructure.NewBambooClient(cfg.Connection(), httpClient, base)
	scanner := application.NewScanner(client, out, logger)

	err = fn(cmd.Context(), scanner, cfg)
	logMetrics(logger, prometheus.DefaultGatherer)
	if err != nil {
		logger.Error().Err(err).Msg("Scan failed")
		return err
	}
	return nil
}

// logMetrics writes one debug line per client counter series and an info
// summary of the totals.
func logMetrics(logger zerolog.Logger, gatherer prometheus.Gatherer) {
	families, err := gatherer.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to gather metrics")
		return
	}

	totals := zerolog.Dict()
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "bamboo_client_") {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			sum += value

			event := logger.Debug().Str("metric", mf.GetName()).Float64("value", value)
			for _, lp := range m.GetLabel() {
				event = event.Str(lp.GetName(), lp.GetValue())
			}
			event.Msg("Metric")
		}
		totals = totals.Float64(strings.TrimPrefix(mf.GetName(), "bamboo_client_"), sum)
	}
	logger.Info().Dict("totals", totals).Msg("Run metrics")
}
