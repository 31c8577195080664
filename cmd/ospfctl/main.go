// ospfctl drives the OSPF fleet orchestrator: it builds one
// Orchestrator per process (pkg/orchestrator) over the Connection
// Manager, Job Store, Artifact Store, Topology Store and Jumphost
// Store, then exposes its verb API as a noun-group CLI.
//
// Noun-group pattern (grounded on cmd/newtron/main.go):
//
//	ospfctl jobs create -d r1,r2,r3 -c "show ip ospf neighbor" -b 10
//	ospfctl jobs get <job-id>
//	ospfctl jobs stop <job-id>
//	ospfctl topology build
//	ospfctl jumphost get
//	ospfctl jumphost set --host 10.0.0.1 --username ops
//	ospfctl files list --kind text
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtron/pkg/orchestrator"
	"github.com/newtron-network/newtron/pkg/orchestrator/artifact"
	"github.com/newtron-network/newtron/pkg/orchestrator/conn"
	"github.com/newtron-network/newtron/pkg/orchestrator/config"
	"github.com/newtron-network/newtron/pkg/orchestrator/credential"
	"github.com/newtron-network/newtron/pkg/orchestrator/executor"
	"github.com/newtron-network/newtron/pkg/orchestrator/inventory"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobmanager"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobstore"
	"github.com/newtron-network/newtron/pkg/orchestrator/jumphost"
	"github.com/newtron-network/newtron/pkg/orchestrator/metrics"
	"github.com/newtron-network/newtron/pkg/orchestrator/progress"
	"github.com/newtron-network/newtron/pkg/orchestrator/scheduler"
	"github.com/newtron-network/newtron/pkg/orchestrator/topology"
	"github.com/newtron-network/newtron/pkg/util"
	"github.com/newtron-network/newtron/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	configPath    string
	inventoryPath string
	verbose       bool
	jsonOutput    bool

	orch *orchestrator.Orchestrator
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "ospfctl",
	Short:             "OSPF fleet orchestrator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isVersionOrHelp(cmd) {
			return nil
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if app.jsonOutput {
			util.SetJSONFormat()
		}

		cfg, err := config.LoadFrom(app.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		orch, err := wire(cfg, app.inventoryPath)
		if err != nil {
			return fmt.Errorf("initializing orchestrator: %w", err)
		}
		app.orch = orch

		return nil
	},
}

// wire constructs every collaborator under cfg.GetDataRoot() and
// assembles them into an Orchestrator, mirroring the teacher's
// network.NewNetwork(specDir) single construction point.
func wire(cfg *config.Config, inventoryPath string) (*orchestrator.Orchestrator, error) {
	root := cfg.GetDataRoot()

	keyPath := cfg.EncryptionKeyPath
	if keyPath == "" {
		keyPath = filepath.Join(root, "credentials", "key")
	}
	creds, err := credential.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	artifacts, err := artifact.Open(filepath.Join(root, "artifacts"))
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}

	jobs, err := jobstore.Open(filepath.Join(root, "jobs.db"))
	if err != nil {
		return nil, fmt.Errorf("opening job store: %w", err)
	}

	topoStore, err := topology.Open(filepath.Join(root, "topology.db"), filepath.Join(root, "topology_snapshots"))
	if err != nil {
		return nil, fmt.Errorf("opening topology store: %w", err)
	}

	jh, err := jumphost.Load(filepath.Join(root, "jumphost.json"))
	if err != nil {
		return nil, fmt.Errorf("loading jumphost config: %w", err)
	}

	if inventoryPath == "" {
		inventoryPath = filepath.Join(root, "devices.yaml")
	}
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		return nil, fmt.Errorf("loading device inventory: %w", err)
	}

	bus := progress.NewBus(cfg.GetProgressBusBuffer())
	connections := conn.NewManager()
	exec := executor.New(artifacts, jobs, bus)

	sched := &scheduler.Scheduler{
		Devices:         inv,
		Credentials:     creds,
		Connections:     connections,
		Executor:        exec,
		Jobs:            jobs,
		Bus:             bus,
		Jumphost:        jh,
		JumphostDecrypt: creds,
		ConnectTimeout:  cfg.GetConnectTimeout(),
		ReadTimeout:     cfg.GetReadTimeout(),
	}
	bus.SetSnapshotter(sched)

	mgr := jobmanager.New(jobs, bus, sched, connections)
	builder := topology.New(artifacts, inv)

	metrics.Register()

	return orchestrator.New(mgr, artifacts, builder, topoStore, jh, bus, cfg.GetConnectTimeout()), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", config.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&app.inventoryPath, "inventory", "", "Device inventory YAML path (default: DATA_ROOT/devices.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output for command results and logs")

	rootCmd.AddGroup(
		&cobra.Group{ID: "jobs", Title: "Job Commands:"},
		&cobra.Group{ID: "fleet", Title: "Fleet Commands:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{jobsCmd} {
		cmd.GroupID = "jobs"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{topologyCmd, jumphostCmd, filesCmd} {
		cmd.GroupID = "fleet"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

func isVersionOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version":
			return true
		}
	}
	return false
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}
