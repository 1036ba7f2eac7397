// Package cli implements the weather command-line tool, which runs the same
// lookup pipeline as the slash command and prints the result locally.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kjstillabower/slack-weather/internal/query"
	"github.com/kjstillabower/slack-weather/internal/slack"
)

// Resolver geocodes and forecasts a query. The bool is false when the
// address could not be resolved.
type Resolver interface {
	Resolve(ctx context.Context, q query.LocationQuery, imageBaseURL string) (slack.FormatInput, bool, error)
}

// Output formats for lookup.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// New returns the root command. resolve is called lazily so that commands
// which need no upstream access (color) work without credentials.
func New(resolve func() (Resolver, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "weather",
		Short:         "Weather forecasts from the command line, formatted as the /weather slash command would",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLookupCmd(resolve), newColorCmd())
	return root
}

func newLookupCmd(resolve func() (Resolver, error)) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "lookup TEXT...",
		Short: "Look up the forecast for a location, e.g. `lookup in paris in celsius`",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != FormatTable && format != FormatJSON {
				return fmt.Errorf("invalid --format %q: expected %s or %s", format, FormatTable, FormatJSON)
			}
			q := query.Normalize(strings.Join(args, " "))
			if q.Help {
				return writeMessage(cmd.OutOrStdout(), format, slack.Ephemeral(query.HelpText))
			}

			r, err := resolve()
			if err != nil {
				return err
			}
			in, ok, err := r.Resolve(cmd.Context(), q, "")
			if err != nil {
				return err
			}
			if !ok {
				return writeMessage(cmd.OutOrStdout(), format, slack.Ephemeral(slack.UnresolvableAddressText))
			}
			return writeMessage(cmd.OutOrStdout(), format, slack.FormatForecast(in))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "output format: table or json")
	return cmd
}

func newColorCmd() *cobra.Command {
	var metric bool
	cmd := &cobra.Command{
		Use:   "color TEMP",
		Short: "Print the attachment color for an apparent temperature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid temperature %q: %w", args[0], err)
			}
			units := query.Imperial
			if metric {
				units = query.Metric
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), slack.ColorFor(&t, units))
			return err
		},
	}
	cmd.Flags().BoolVar(&metric, "metric", false, "TEMP is in °C")
	return cmd
}

func writeMessage(w io.Writer, format string, msg slack.Message) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(msg)
	}
	if msg.Text != "" {
		_, err := fmt.Fprintln(w, msg.Text)
		return err
	}
	for _, att := range msg.Attachments {
		fmt.Fprintln(w, att.Fallback)
		printTable(w, []string{"Field", "Value"}, func(add func(...string)) {
			add("Color", att.Color)
			for _, f := range att.Fields {
				add(f.Title, f.Value)
			}
		})
	}
	return nil
}

// printTable renders rows with a left-aligned header.
func printTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}
