package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-xattrfs/internal/parsers/totals"
	"github.com/deploymenttheory/go-xattrfs/internal/search"
	"github.com/deploymenttheory/go-xattrfs/pkg/app/output"
)

var (
	totalsFrom  string
	totalsLimit int
)

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Print the global total buckets",
	Example: `  xattrfs totals
  xattrfs totals --from 1.0.0 --limit 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var from [3]uint64
		if totalsFrom != "" {
			fields := strings.Split(totalsFrom, ".")
			if len(fields) != 3 {
				return fmt.Errorf("--from %q needs three dotted numbers", totalsFrom)
			}
			for i, f := range fields {
				n, err := totals.ParseU64([]byte(f))
				if err != nil {
					return fmt.Errorf("--from %q: %w", totalsFrom, err)
				}
				from[i] = n
			}
		}

		svc, err := factory.XattrService()
		if err != nil {
			return err
		}
		entries, err := svc.ReadTotals(cmd.Context(), from, totalsLimit)
		if err != nil {
			return err
		}

		return output.Write(cmd.OutOrStdout(), outputFormat, newTotalRows(entries))
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Print the inodes holding a searchable attribute",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := factory.SearchIndex()
		if err != nil {
			return err
		}
		entries, err := idx.Search(cmd.Context(), search.NameHash([]byte(args[0])))
		if err != nil {
			return err
		}
		return output.Write(cmd.OutOrStdout(), outputFormat, searchRows(entries))
	},
}

func init() {
	rootCmd.AddCommand(totalsCmd, searchCmd)

	totalsCmd.Flags().StringVar(&totalsFrom, "from", "", "first bucket to print, as a.b.c")
	totalsCmd.Flags().IntVar(&totalsLimit, "limit", 0, "most buckets to print, 0 for all")
}
