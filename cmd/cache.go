package cmd

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/api"
	"github.com/nsqe/nsqe/format"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the KV-cache arena",
	}
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show KV-cache occupancy",
		Args:  cobra.ExactArgs(0),
		RunE:  runCacheStats,
	}
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	var stats api.CacheStats
	_, err := getJSON("/cache/stats", &stats)
	if err != nil {
		return exitErr(exitCodeFor(err), err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"TOTAL SPOTS", "FREE SPOTS", "FREE BYTES", "RESIDENT BLOCKS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.Append([]string{
		strconv.Itoa(stats.TotalSpots),
		strconv.Itoa(stats.FreeSpots),
		format.HumanBytes(stats.FreeBytes),
		strconv.Itoa(stats.ResidentBlocks),
	})
	table.Render()
	return nil
}
