package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/source"
)

func newSourcesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List supported sources and their request budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			supported := source.Supported()
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), supported)
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(prettytable.Row{"Source", "Name", "Req/min", "Patterns"})
			for _, info := range supported {
				t.AppendRow(prettytable.Row{info.Source, info.Name, info.RequestsPerMinute, strings.Join(info.Patterns, " ")})
			}
			t.Render()
			return nil
		},
	}
}

func newDetectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <url>...",
		Short: "Print the source each URL belongs to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.jsonOutput {
				out := make(map[string]model.Source, len(args))
				for _, u := range args {
					out[u] = source.Detect(u)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(prettytable.Row{"URL", "Source"})
			for _, u := range args {
				t.AppendRow(prettytable.Row{u, source.Detect(u)})
			}
			t.Render()
			return nil
		},
	}
}

func newPreviewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <url>",
		Short: "Fetch and extract one posting without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp, logger := opts.deps()
			defer logger.Sync() //nolint:errcheck

			res := imp.Preview(cmd.Context(), args[0])
			if !res.Success {
				return res.Error
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderPostings(cmd.OutOrStdout(), []model.Posting{*res.Posting})
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			return nil
		},
	}
}

type repoFlags struct {
	max         int
	companies   []string
	exclude     []string
	locations   []string
	since       string
	sponsorship bool
}

func newImportRepoCommand(opts *rootOptions) *cobra.Command {
	f := &repoFlags{}
	cmd := &cobra.Command{
		Use:   "import-repo <github-url>",
		Short: "Import postings from a GitHub repository README table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters(cmd)
			if err != nil {
				return err
			}

			imp, logger := opts.deps()
			defer logger.Sync() //nolint:errcheck

			res := imp.ImportRepository(cmd.Context(), args[0], filters, f.max)
			if !res.Success {
				return res.Error
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderPostings(cmd.OutOrStdout(), res.Postings)
			fmt.Fprintf(cmd.OutOrStdout(), "%d postings from branch %s\n", res.Total, res.Branch)
			return nil
		},
	}
	cmd.Flags().IntVar(&f.max, "max", 0, "maximum postings to return (0 uses the service default)")
	cmd.Flags().StringSliceVar(&f.companies, "company", nil, "only these companies")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude-company", nil, "skip these companies")
	cmd.Flags().StringSliceVar(&f.locations, "location", nil, "only postings whose location contains one of these")
	cmd.Flags().StringVar(&f.since, "since", "", "only postings dated on or after this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.sponsorship, "sponsorship", false, "drop postings known not to sponsor visas")
	return cmd
}

func (f *repoFlags) filters(cmd *cobra.Command) (model.RepoFilters, error) {
	filters := model.RepoFilters{
		Companies:        f.companies,
		ExcludeCompanies: f.exclude,
		Locations:        f.locations,
	}
	if f.since != "" {
		t, err := time.Parse(time.DateOnly, f.since)
		if err != nil {
			return filters, fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
		}
		filters.PostedAfter = &t
	}
	if cmd.Flags().Changed("sponsorship") {
		filters.Sponsorship = model.Bool(f.sponsorship)
	}
	return filters, nil
}

func renderPostings(w io.Writer, postings []model.Posting) {
	t := newTable(w)
	t.AppendHeader(prettytable.Row{"Company", "Title", "Location", "Type", "Posted", "Apply"})
	for _, p := range postings {
		posted := ""
		if p.PostedAt != nil {
			posted = p.PostedAt.Format(time.DateOnly)
		}
		t.AppendRow(prettytable.Row{p.Company, p.Title, p.Location, p.JobType, posted, p.ApplicationURL})
	}
	t.Render()
}

func newTable(w io.Writer) prettytable.Writer {
	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(prettytable.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
