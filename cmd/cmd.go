package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/ollama-usage/envconfig"
	"github.com/ollama/ollama-usage/format"
	"github.com/ollama/ollama-usage/logutil"
	"github.com/ollama/ollama-usage/server"
	"github.com/ollama/ollama-usage/sources"
	"github.com/ollama/ollama-usage/usage"
	"github.com/ollama/ollama-usage/version"
)

const defaultAddr = "127.0.0.1:11435"

// minNameWidth is the narrowest the name column is truncated to on small
// terminals.
const minNameWidth = 20

// collect gathers the inputs selected by the command's flags and builds a
// report from them.
func collect(ctx context.Context, cmd *cobra.Command) (usage.Result, error) {
	manifests := envconfig.Manifests()
	if dir, _ := cmd.Flags().GetString("models"); dir != "" {
		manifests = filepath.Join(dir, "manifests")
	}

	var logs []sources.LogSource
	if globs, _ := cmd.Flags().GetStringArray("log"); len(globs) > 0 {
		logs = []sources.LogSource{sources.Files(globs)}
	} else if paths := envconfig.LogPaths(); len(paths) > 0 {
		logs = []sources.LogSource{sources.Files(paths)}
	} else {
		logs = sources.DefaultLogSources(envconfig.JournalUnit())
	}

	slog.Debug("collecting usage", "env", envconfig.LogValue(), "manifests", manifests, "sources", len(logs))
	result, err := sources.Collect(ctx, manifests, logs)
	if err != nil {
		return usage.Result{}, err
	}

	for _, w := range result.Warnings {
		if errors.Is(w, exec.ErrNotFound) {
			slog.Debug("skipping log source", "error", w)
			continue
		}
		slog.Warn(w.Error())
	}

	return result, nil
}

func ReportHandler(cmd *cobra.Command, args []string) error {
	result, err := collect(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	var opts reportOptions
	opts.relative, _ = cmd.Flags().GetBool("relative")
	noUnlogged, _ := cmd.Flags().GetBool("no-unlogged")
	opts.unlogged = !noUnlogged
	opts.nameWidth = nameWidth(cmd.OutOrStdout())

	writeReport(cmd.OutOrStdout(), result, opts)
	return nil
}

func writeJSON(w io.Writer, result usage.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Report())
}

type reportOptions struct {
	relative bool
	unlogged bool

	// nameWidth truncates names longer than it. Zero leaves names intact.
	nameWidth int
}

func (o reportOptions) name(s string) string {
	if o.nameWidth <= 0 {
		return s
	}
	return runewidth.Truncate(s, o.nameWidth, "...")
}

func (o reportOptions) lastUsed(r usage.Row) string {
	if o.relative {
		return format.HumanTime(r.LastUsed, "Never")
	}
	return format.Date(r.LastUsed, "Never")
}

// nameWidth returns the widest name that keeps a report row on one line
// of the terminal behind w, or zero when w is not a terminal.
func nameWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}

	// LAST USED, COUNT, SIZE and their padding
	return max(width-48, minNameWidth)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func writeReport(w io.Writer, result usage.Result, opts reportOptions) {
	var active, deleted [][]string
	for _, r := range result.Rows {
		if r.Deleted {
			deleted = append(deleted, []string{opts.name(r.Name), opts.lastUsed(r), fmt.Sprint(r.Count)})
			continue
		}
		active = append(active, []string{opts.name(r.Name), opts.lastUsed(r), fmt.Sprint(r.Count), format.HumanBytes(r.Size)})
	}

	fmt.Fprintln(w, "Active Models:")
	table := newTable(w, []string{"NAME", "LAST USED", "COUNT", "SIZE"})
	table.AppendBulk(active)
	table.Render()

	if opts.unlogged && len(result.Unlogged) > 0 {
		var data [][]string
		for _, e := range result.Unlogged {
			data = append(data, []string{opts.name(e.Name.DisplayShortest()), format.HumanBytes(e.Size)})
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "Unlogged Models:")
		table := newTable(w, []string{"NAME", "SIZE"})
		table.AppendBulk(data)
		table.Render()
	}

	if len(deleted) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Deleted Models:")
		table := newTable(w, []string{"NAME", "LAST USED", "COUNT"})
		table.AppendBulk(deleted)
		table.Render()
	}
}

func RunServer(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return server.Serve(cmd.Context(), ln, func(ctx context.Context) (usage.Result, error) {
		return collect(ctx, cmd)
	})
}

func EnvHandler(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if example, _ := cmd.Flags().GetBool("config"); example {
		fmt.Fprint(out, envconfig.GenerateExampleConfig())
		return nil
	}

	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		data = append(data, []string{k, fmt.Sprint(vars[k].Value), vars[k].Description})
	}

	table := newTable(out, []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("models", "", "Models directory to read manifests from (default $OLLAMA_MODELS)")
	cmd.Flags().StringArray("log", nil, "Server log file or glob to read, may be repeated (default $OLLAMA_USAGE_LOGS or the platform logs)")
}

func addReportFlags(cmd *cobra.Command) {
	addInputFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().Bool("relative", false, "Show last use relative to now")
	cmd.Flags().Bool("no-unlogged", false, "Hide installed models that never appear in the logs")
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ollama-usage",
		Short:   "Report which Ollama models are used",
		Long:    "Report how often and how recently each installed Ollama model was loaded, based on the server logs.",
		Args:    cobra.NoArgs,
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			verbosity, _ := cmd.Flags().GetCount("verbose")
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), logutil.Level(envconfig.Debug(), verbosity)))
		},
		RunE: ReportHandler,
	}

	rootCmd.PersistentFlags().CountP("verbose", "v", "Show debug output, twice for trace output")
	addReportFlags(rootCmd)

	cobra.EnableCommandSorting = false

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print model usage",
		Args:  cobra.NoArgs,
		RunE:  ReportHandler,
	}
	addReportFlags(reportCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve model usage over HTTP",
		Args:  cobra.NoArgs,
		RunE:  RunServer,
	}
	addInputFlags(serveCmd)
	serveCmd.Flags().String("addr", defaultAddr, "Address to listen on")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Print the environment variables ollama-usage reads",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}
	envCmd.Flags().Bool("config", false, "Print an example configuration file instead")

	rootCmd.AddCommand(
		reportCmd,
		serveCmd,
		envCmd,
	)

	return rootCmd
}
