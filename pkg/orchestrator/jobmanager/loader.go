package jobmanager

import (
	"fmt"
	"os"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"gopkg.in/yaml.v3"
)

// BatchFile is the on-disk shape of a job-batch definition
// ("ospfctl jobs create -f job.yaml"), the YAML analogue of passing
// every CreateJob argument on the command line.
type BatchFile struct {
	DeviceIDs      []string `yaml:"device_ids"`
	Commands       []string `yaml:"commands"`
	BatchSize      int      `yaml:"batch_size"`
	DevicesPerHour int      `yaml:"devices_per_hour"`
	ConnectionMode string   `yaml:"connection_mode"`
}

// LoadBatchFile reads and validates a job-batch definition at path.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file %s: %w", path, err)
	}

	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}

	if err := bf.validate(); err != nil {
		return nil, err
	}
	return &bf, nil
}

func (bf *BatchFile) validate() error {
	var msgs []string
	if len(bf.DeviceIDs) == 0 {
		msgs = append(msgs, "device_ids must not be empty")
	}
	if len(bf.Commands) == 0 {
		msgs = append(msgs, "commands must not be empty")
	}
	switch model.ConnectionMode(bf.ConnectionMode) {
	case "", model.ConnectionParallel, model.ConnectionSequential:
	default:
		msgs = append(msgs, fmt.Sprintf("connection_mode %q is not one of parallel, sequential", bf.ConnectionMode))
	}
	if len(msgs) > 0 {
		return errs.NewValidation(msgs...)
	}
	return nil
}

// Mode returns the batch's connection mode, defaulting to parallel when
// the file leaves it blank.
func (bf *BatchFile) Mode() model.ConnectionMode {
	if bf.ConnectionMode == "" {
		return model.ConnectionParallel
	}
	return model.ConnectionMode(bf.ConnectionMode)
}
