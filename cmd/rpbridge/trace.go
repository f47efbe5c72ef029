package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/remoteport/datarecording"
	"github.com/sarchlab/remoteport/tracing"
)

func newTraceCmd() *cobra.Command {
	var (
		kind   string
		what   string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "trace PATH",
		Short: "Print the tasks recorded with --trace-db",
		Long: `Trace reads the SQLite recording at PATH, the same path given to ` +
			`--trace-db, and prints one JSON object per task in start order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)

			r, err := datarecording.NewReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			r.MapTable(tracing.TraceTable, tracing.TaskEntry{})

			params := traceQuery(kind, what)
			params.OrderBy = "StartTime, ID"
			params.Limit = limit
			params.Offset = offset

			results, total, err := r.Query(cmd.Context(), tracing.TraceTable, params)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(a.out)
			for _, res := range results {
				err := enc.Encode(res.(*tracing.TaskEntry))
				if err != nil {
					return err
				}
			}

			a.log.Debug().
				Int("printed", len(results)).
				Int("total", total).
				Msg("trace dumped")

			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only print tasks of this kind (transaction or request)")
	cmd.Flags().StringVar(&what, "what", "", "only print tasks of this command (read, write, sync, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many tasks, 0 prints all")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many tasks, needs --limit")

	return cmd
}

func traceQuery(kind, what string) datarecording.QueryParams {
	var (
		conds  []string
		params datarecording.QueryParams
	)

	if kind != "" {
		conds = append(conds, "Kind = ?")
		params.Args = append(params.Args, kind)
	}

	if what != "" {
		conds = append(conds, "What = ?")
		params.Args = append(params.Args, what)
	}

	params.Where = strings.Join(conds, " AND ")

	return params
}
