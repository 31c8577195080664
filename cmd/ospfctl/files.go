package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtron/pkg/cli"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List and read persisted command artifacts",
}

var filesListKind string

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifact files",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := model.FileKindText
		if filesListKind == "json" {
			kind = model.FileKindJSON
		}

		files, err := app.orch.FilesList(kind)
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return printJSON(files)
		}

		t := cli.NewTable("DEVICE", "COMMAND", "KIND", "PATH")
		for _, f := range files {
			t.Row(f.Device, f.Command, string(f.Kind), f.Path)
		}
		t.Flush()
		return nil
	},
}

var filesReadCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print one artifact file's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := app.orch.FileRead(args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	filesListCmd.Flags().StringVar(&filesListKind, "kind", "text", "Artifact kind: text or json")
	filesCmd.AddCommand(filesListCmd, filesReadCmd)
}
