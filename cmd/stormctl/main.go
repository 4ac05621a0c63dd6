// Command stormctl is an operator tool for the storm alert relay. It queries
// the upstream feeds directly and can trigger a simulation on a running
// service.
//
// Usage:
//
//	stormctl active
//	stormctl history --start 2024-05-26 --end 2024-05-27
//	stormctl discussions
//	stormctl normalize 2024-05-26T14:00:00-05:00
//	stormctl simulate --server http://localhost:8080 --start 2024-05-26T18:00Z --end 2024-05-26T20:00Z
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-alert-service/internal/adapter/iem"
	"github.com/couchcryptid/storm-alert-service/internal/adapter/spc"
	"github.com/couchcryptid/storm-alert-service/internal/domain"
	"github.com/couchcryptid/storm-alert-service/internal/observability"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the persistent flag values shared by every subcommand.
type cli struct {
	out     io.Writer
	jsonOut bool
	verbose bool
	timeout time.Duration

	sbwURL     string
	rssURL     string
	phenomenon string
	padding    float64

	logger  *slog.Logger
	metrics *observability.Metrics
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, metrics: observability.NewUnregisteredMetrics()}

	root := &cobra.Command{
		Use:          "stormctl",
		Short:        "Inspect storm warning feeds and drive the alert relay",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.BoolVar(&c.jsonOut, "json", false, "print JSON instead of a table")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log upstream requests")
	pf.DurationVar(&c.timeout, "timeout", 15*time.Second, "upstream request timeout")
	pf.StringVar(&c.sbwURL, "sbw-url",
		sharedcfg.EnvOrDefault("IEM_SBW_URL", "https://mesonet.agron.iastate.edu/geojson/sbw.geojson"),
		"storm-based warning GeoJSON endpoint")
	pf.StringVar(&c.rssURL, "rss-url",
		sharedcfg.EnvOrDefault("SPC_MD_RSS_URL", "https://www.spc.noaa.gov/products/spcmdrss.xml"),
		"mesoscale discussion RSS feed")
	pf.StringVar(&c.phenomenon, "phenomenon", domain.TornadoWarning, "warning label to keep")
	pf.Float64Var(&c.padding, "padding", domain.DefaultPadding, "bounding box padding in degrees")

	root.AddCommand(
		c.activeCmd(),
		c.historyCmd(),
		c.discussionsCmd(),
		normalizeCmd(),
		c.simulateCmd(),
	)
	return root
}

func (c *cli) feed() *iem.Client {
	return iem.NewClient(c.sbwURL, c.timeout, c.metrics, c.logger)
}

func (c *cli) extractOptions() domain.ExtractOptions {
	opts := domain.DefaultExtractOptions()
	opts.Phenomenon = c.phenomenon
	opts.Padding = c.padding
	return opts
}

func (c *cli) activeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List warnings active right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := c.feed().FetchActive(cmd.Context())
			if err != nil {
				return err
			}
			return c.printWarnings(domain.Extract(doc, c.extractOptions()))
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List warnings valid within a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := c.feed().FetchRange(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			return c.printWarnings(domain.Extract(doc, c.extractOptions()))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start (any supported timestamp)")
	cmd.Flags().StringVar(&end, "end", "", "window end (any supported timestamp)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *cli) discussionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discussions",
		Short: "List the mesoscale discussions currently in the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := spc.NewClient(c.rssURL, c.timeout, c.metrics, c.logger).FetchDiscussions(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeIndented(c.out, items)
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PUBLISHED\tTITLE\tLINK")
			for _, item := range items {
				published := "-"
				if item.Published != nil {
					published = domain.FormatTimestamp(*item.Published)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", published, item.Title, item.Link)
			}
			return tw.Flush()
		},
	}
}

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize TIMESTAMP...",
		Short: "Print timestamps in canonical UTC form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var failed int
			for _, arg := range args {
				ts, err := domain.NormalizeTimestamp(arg)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", arg, err)
					failed++
					continue
				}
				fmt.Fprintln(out, ts)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d timestamps could not be parsed", failed, len(args))
			}
			return nil
		},
	}
}

func (c *cli) printWarnings(events []domain.WarningEvent) error {
	if c.jsonOut {
		if events == nil {
			events = []domain.WarningEvent{}
		}
		return writeIndented(c.out, events)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVTEC\tSTATUS\tISSUED\tEXPIRES\tTAGS")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, ev.VTECLabel(), ev.Status, timeOrDash(ev.Issue), timeOrDash(ev.Expire), tags(ev))
	}
	return tw.Flush()
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return domain.FormatTimestamp(*t)
}

func tags(ev domain.WarningEvent) string {
	var parts []string
	if ev.TornadoTag != "" {
		parts = append(parts, ev.TornadoTag)
	}
	if ev.IsPDS {
		parts = append(parts, "PDS")
	}
	if ev.IsEmergency {
		parts = append(parts, "EMERGENCY")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
