package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PropertyScanner/internal/app"
	"PropertyScanner/internal/config"
	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/listingmatch"
	"PropertyScanner/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "propertyscanner",
		Short:         "Ingest and enrich UK property records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(ingestCmd(), sweepCmd(), repairCmd(), matchCmd(), overlapCmd(), serveCmd())
	return root
}

// withApp loads configuration, builds the application and closes it after run.
func withApp(run func(ctx context.Context, a *app.Application) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := logging.New(cfg.Logging.Level)

		application, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := application.Close(); err != nil {
				logger.Warn("close application", "error", err)
			}
		}()
		return run(cmd.Context(), application)
	}
}

func ingestCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run every ingestion phase once",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			results, err := a.Ingest(ctx, source)
			if err != nil {
				return err
			}
			return printJSON(results)
		}),
	}
	cmd.Flags().StringVar(&source, "source", "", "run a single adapter by name")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark records that were not re-ingested recently as stale",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			marked, err := a.Sweep(ctx)
			fmt.Printf("marked %d records stale\n", marked)
			return err
		}),
	}
}

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Fix listing type and price mismatches in stored records",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			repaired, err := a.Repair(ctx)
			fmt.Printf("repaired %d records\n", repaired)
			return err
		}),
	}
}

func matchCmd() *cobra.Command {
	var (
		q           listingmatch.Query
		bedrooms    int
		lat, lng    float64
		listingType string
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Find the live listing for one property",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			if bedrooms > 0 {
				q.Bedrooms = &bedrooms
			}
			if lat != 0 || lng != 0 {
				q.Latitude, q.Longitude = &lat, &lng
			}
			q.ListingType = domain.ListingType(listingType)
			match, err := a.Match(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(match)
		}),
	}
	cmd.Flags().StringVar(&q.Address, "address", "", "property address")
	cmd.Flags().StringVar(&q.Postcode, "postcode", "", "property postcode")
	cmd.Flags().IntVar(&bedrooms, "bedrooms", 0, "bedroom count")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&listingType, "type", "", "rent or purchase")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("postcode")
	return cmd
}

func overlapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overlap",
		Short: "Report how many register HMOs are advertised",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			report, err := a.Overlap(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}),
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled ingestion and expose metrics",
		RunE: withApp(func(ctx context.Context, a *app.Application) error {
			return a.Serve(ctx)
		}),
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
