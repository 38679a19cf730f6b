package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/krogueintel/blackbox/internal/output"
	"github.com/krogueintel/blackbox/internal/settings"
	"github.com/krogueintel/blackbox/pkg/cmd/options"
	"github.com/krogueintel/blackbox/pkg/event"
	"github.com/krogueintel/blackbox/pkg/report"
)

const CmdName = "decode"

type Options struct {
	summary bool
	status  bool

	*options.Options
}

type fileResult struct {
	rendered bytes.Buffer

	records  uint64
	blocks   uint64
	maxDepth int
	size     int64
}

func NewCommand(opts *options.Options) *cobra.Command {
	o := new(Options)
	o.Options = opts

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s file [file...]", CmdName),
		Short: "Decode trace files to readable text",
		Long: fmt.Sprintf(`
%s reads binary trace files and prints the recorded call stream as
indented text, one block level per call nesting level.
`, CmdName),
		DisableAutoGenTag: true,
		Args:              cobra.MinimumNArgs(1),
		RunE:              o.Run,
	}

	cmd.Flags().BoolVar(&o.summary, "summary", false, fmt.Sprintf("Write a summary of the decoded files (as %s)", settings.ReportFileName))
	cmd.Flags().BoolVar(&o.status, "status", true, "Print decode progress")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	results := make([]*fileResult, len(args))
	var done atomic.Int64

	g, _ := errgroup.WithContext(o.Ctx)
	for i, path := range args {
		g.Go(func() error {
			res, err := o.decodeFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to decode %s", path)
			}
			results[i] = res

			if o.status {
				output.DecodeStatus(int(done.Add(1)), len(args))
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if o.status {
		fmt.Println()
	}

	w := bufio.NewWriter(cmd.OutOrStdout())
	for i, res := range results {
		fmt.Fprintf(w, "# %s\n", args[i])
		w.Write(res.rendered.Bytes())
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "failed to write decoded output")
	}

	if o.summary {
		return o.writeSummary(args, results)
	}

	return nil
}

// decodeFile renders one trace file. A truncated tail or unbalanced
// block structure is reported inline rather than aborting: the point of
// decoding is usually inspecting a file cut short by a crash.
func (o *Options) decodeFile(path string) (*fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := new(fileResult)
	dec := event.NewDecoder(bufio.NewReader(f))
	depth := 0

	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(&res.rendered, "! %v\n", err)
			break
		}

		res.records++
		res.size += event.EncodedSize(ev)

		switch ev.Type {
		case event.BlockBegin:
			res.blocks++
			if len(ev.Value) > 0 {
				fmt.Fprintf(&res.rendered, "%s%s %s {\n", indent(depth), ev.Name, ev.Value)
			} else {
				fmt.Fprintf(&res.rendered, "%s%s {\n", indent(depth), ev.Name)
			}
			depth++
			if depth > res.maxDepth {
				res.maxDepth = depth
			}
		case event.BlockEnd:
			if depth == 0 {
				fmt.Fprintf(&res.rendered, "! block end without matching begin\n")
				continue
			}
			depth--
			fmt.Fprintf(&res.rendered, "%s}\n", indent(depth))
		case event.Value:
			fmt.Fprintf(&res.rendered, "%s%s = %q\n", indent(depth), ev.Name, ev.Value)
		}
	}
	if depth != 0 {
		fmt.Fprintf(&res.rendered, "! %d blocks left open at end of file\n", depth)
	}

	o.Logger.Debug().Str("file", path).Uint64("records", res.records).Msg("decoded")

	return res, nil
}

func (o *Options) writeSummary(files []string, results []*fileResult) error {
	var records, blocks uint64
	var size int64
	maxDepth := 0
	for _, res := range results {
		records += res.records
		blocks += res.blocks
		size += res.size
		if res.maxDepth > maxDepth {
			maxDepth = res.maxDepth
		}
	}

	rep := report.NewTraceReport(
		report.WithReportFiles(files),
		report.WithReportRecords(records),
		report.WithReportBlocks(blocks),
		report.WithReportMaxDepth(maxDepth),
		report.WithReportTotalBytes(size),
	)

	f, err := os.Create(settings.ReportFileName)
	if err != nil {
		return errors.Wrap(err, "failed to create report file")
	}
	defer f.Close()

	if err := rep.WriteReport(f); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	o.Logger.Info().Str("file", settings.ReportFileName).Msg("summary written")

	return nil
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
