package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtron/pkg/cli"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Rebuild and inspect the OSPF topology snapshot",
}

var topologyBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Reconstruct the topology from the latest artifacts and save it",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := app.orch.TopologyBuild()
		if err != nil {
			return err
		}
		return printSnapshot(snapshot)
	},
}

var topologyLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently saved topology snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := app.orch.TopologyLatest()
		if err != nil {
			return err
		}
		if snapshot == nil {
			fmt.Println(cli.Dim("no topology snapshot yet"))
			return nil
		}
		return printSnapshot(*snapshot)
	},
}

func printSnapshot(snapshot model.Snapshot) error {
	if app.jsonOutput {
		return printJSON(snapshot)
	}

	fmt.Printf("discovered %s at %s, %d nodes, %d links\n",
		snapshot.Metadata.DiscoveryMethod, snapshot.Metadata.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
		len(snapshot.Nodes), len(snapshot.Links))

	t := cli.NewTable("NODE", "COUNTRY", "PLATFORM")
	for _, n := range snapshot.Nodes {
		t.Row(n.ID, n.Country, string(n.Platform))
	}
	t.Flush()

	lt := cli.NewTable("SOURCE", "TARGET", "COST", "STATUS")
	for _, l := range snapshot.Links {
		lt.Row(l.Source, l.Target, fmt.Sprintf("%d", l.Cost), l.Status)
	}
	lt.Flush()

	return nil
}

func init() {
	topologyCmd.AddCommand(topologyBuildCmd, topologyLatestCmd)
}
