package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tanshuai2008/HouSmart-test/internal/benchmark"
)

var benchmarksCmd = &cobra.Command{
	Use:   "benchmarks [state]",
	Short: "Print the state and national benchmark table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := benchmark.Default()
		if err != nil {
			return err
		}
		names := bm.Names()
		if len(args) == 1 {
			names = []string{bm.Lookup(args[0]).StateName}
		}
		return writeBenchmarks(cmd.OutOrStdout(), bm, names)
	},
}

func init() {
	rootCmd.AddCommand(benchmarksCmd)
}

func writeBenchmarks(w io.Writer, bm *benchmark.Store, names []string) error {
	table := tablewriter.NewWriter(w)
	table.Header("State", "Median income", "Income <50k", "Bachelor", "Advanced", "White", "Hispanic")

	data := make([][]string, 0, len(names))
	for _, name := range names {
		row := bm.Lookup(name).State
		data = append(data, []string{
			row.Name,
			"$" + strconv.Itoa(row.MedianIncome),
			pctAt(row.Income, 0),
			pctAt(row.Education, 1),
			pctAt(row.Education, 2),
			pctAt(row.Race, 0),
			pctAt(row.Race, 3),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
