package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/api"
)

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Inspect and manage cluster membership",
	}
	cmd.AddCommand(newClusterStatusCmd(), newClusterHeartbeatCmd())
	return cmd
}

func newClusterStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List known cluster nodes",
		Args:  cobra.ExactArgs(0),
		RunE:  runClusterStatus,
	}
}

func runClusterStatus(cmd *cobra.Command, _ []string) error {
	var nodes []api.NodeRecord
	_, err := getJSON("/cluster/nodes", &nodes)
	if err != nil {
		return exitErr(exitCodeFor(err), err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NODE", "STATE", "LOAD", "FREE CACHE", "RESIDENT MODELS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, n := range nodes {
		table.Append([]string{
			n.ID,
			n.State,
			fmt.Sprintf("%.2f", n.Load),
			fmt.Sprintf("%d", n.FreeCacheBytes),
			fmt.Sprintf("%v", n.ResidentModels),
		})
	}
	table.Render()
	return nil
}

func newClusterHeartbeatCmd() *cobra.Command {
	var (
		nodeID string
		load   float64
	)
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send a manual heartbeat for a node",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ack api.Ack
			_, err := postJSON("/cluster/nodes/"+nodeID+"/heartbeat", api.HeartbeatRequest{Load: load}, &ack)
			if err != nil {
				return exitErr(exitCodeFor(err), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node id")
	cmd.Flags().Float64Var(&load, "load", 0, "current load fraction")
	cmd.MarkFlagRequired("node")
	return cmd
}
