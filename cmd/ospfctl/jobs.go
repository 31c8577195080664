package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtron/pkg/cli"
	"github.com/newtron-network/newtron/pkg/orchestrator/jobmanager"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/util"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create, inspect and stop orchestrator jobs",
}

var (
	jobsCreateDevices   string
	jobsCreateCommands  string
	jobsCreateBatchSize int
	jobsCreateRate      int
	jobsCreateSeq       bool
	jobsCreateFile      string
)

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and launch a new job",
	RunE: func(cmd *cobra.Command, args []string) error {
		var deviceIDs, commands []string
		batchSize, devicesPerHour := jobsCreateBatchSize, jobsCreateRate
		mode := model.ConnectionParallel
		if jobsCreateSeq {
			mode = model.ConnectionSequential
		}

		if jobsCreateFile != "" {
			bf, err := jobmanager.LoadBatchFile(jobsCreateFile)
			if err != nil {
				return err
			}
			deviceIDs, commands = bf.DeviceIDs, bf.Commands
			if bf.BatchSize > 0 {
				batchSize = bf.BatchSize
			}
			if bf.DevicesPerHour > 0 {
				devicesPerHour = bf.DevicesPerHour
			}
			mode = bf.Mode()
		} else {
			deviceIDs = util.SplitCommaSeparated(jobsCreateDevices)
			commands = util.SplitCommaSeparated(jobsCreateCommands)
		}

		jobID, err := app.orch.JobsCreate(deviceIDs, commands, batchSize, devicesPerHour, mode)
		if err != nil {
			return err
		}

		if app.jsonOutput {
			return printJSON(map[string]string{"job_id": jobID})
		}
		fmt.Println(cli.Green("job created: ") + jobID)
		return nil
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := app.orch.JobsGet(args[0])
		if err != nil {
			return err
		}
		return printJob(job)
	},
}

var jobsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently created job",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := app.orch.JobsLatest()
		if err != nil {
			return err
		}
		if job == nil {
			fmt.Println(cli.Dim("no jobs yet"))
			return nil
		}
		return printJob(job)
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Request cancellation of a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.orch.JobsStop(args[0])
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return printJSON(result)
		}
		fmt.Println(cli.Yellow("stop requested"))
		for _, id := range result.DisconnectedDeviceIDs {
			fmt.Println("  disconnected: " + id)
		}
		return nil
	},
}

func printJob(job *model.Job) error {
	if app.jsonOutput {
		return printJSON(job)
	}
	t := cli.NewTable("FIELD", "VALUE")
	t.Row("id", job.ID)
	t.Row("status", string(job.Status))
	t.Row("devices", fmt.Sprintf("%d total, %d completed, %d failed", job.TotalDevices, job.CompletedDevices, job.FailedDevices))
	t.Row("progress", fmt.Sprintf("%d%%", job.ProgressPercent))
	if job.FailureReason != "" {
		t.Row("failure_reason", job.FailureReason)
	}
	t.Flush()
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	jobsCreateCmd.Flags().StringVarP(&jobsCreateDevices, "devices", "d", "", "Comma-separated device ids")
	jobsCreateCmd.Flags().StringVarP(&jobsCreateCommands, "commands", "c", "", "Comma-separated commands")
	jobsCreateCmd.Flags().IntVarP(&jobsCreateBatchSize, "batch-size", "b", 10, "Devices per concurrent batch")
	jobsCreateCmd.Flags().IntVarP(&jobsCreateRate, "rate", "r", 0, "Devices per hour rate limit (0 = unlimited)")
	jobsCreateCmd.Flags().BoolVarP(&jobsCreateSeq, "sequential", "s", false, "Run devices within a batch sequentially")
	jobsCreateCmd.Flags().StringVarP(&jobsCreateFile, "file", "f", "", "Job-batch definition YAML file (overrides --devices/--commands)")

	jobsCmd.AddCommand(jobsCreateCmd, jobsGetCmd, jobsLatestCmd, jobsStopCmd)
}
