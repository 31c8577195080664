// Package inventory supplies the authoritative device list the
// orchestrator is handed at startup (spec.md's "external device
// inventory"). Inventory CRUD is an explicit non-goal, so this is a
// read-only loader, not a store: one YAML file, loaded once and held
// in memory, the same shape as the teacher's labgen.LoadTopology.
package inventory

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

// fileDevice is the YAML row shape; EncryptedPass is read as whatever
// ciphertext the credential store already produced, never plaintext.
type fileDevice struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Host          string `yaml:"host"`
	Transport     string `yaml:"transport"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	EncryptedPass string `yaml:"encrypted_password"`
	Country       string `yaml:"country"`
	Platform      string `yaml:"platform"`
}

type fileInventory struct {
	Devices []fileDevice `yaml:"devices"`
}

// Inventory is the loaded, read-only device set: a map by id, which the
// Batch Scheduler's Resolve looks up in O(1), and the devices in file
// order, which Devices hands to the Topology Builder. There is no index
// by name.
type Inventory struct {
	mu      sync.RWMutex
	byID    map[string]model.Device
	ordered []model.Device
}

// Load reads and validates path, rejecting duplicate ids/names and any
// row missing host/username — the same fail-fast-at-load-time posture
// as the teacher's spec.Loader.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewStorage(path, err.Error())
	}

	var file fileInventory
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errs.NewStorage(path, "parsing inventory YAML: "+err.Error())
	}

	inv := &Inventory{byID: make(map[string]model.Device, len(file.Devices))}
	seenNames := make(map[string]bool, len(file.Devices))

	for _, row := range file.Devices {
		if row.ID == "" || row.Name == "" || row.Host == "" || row.Username == "" {
			return nil, errs.NewValidation(fmt.Sprintf("device %q: id, name, host, and username are required", row.Name))
		}
		if _, dup := inv.byID[row.ID]; dup {
			return nil, errs.NewValidation(fmt.Sprintf("duplicate device id %q", row.ID))
		}
		if seenNames[row.Name] {
			return nil, errs.NewValidation(fmt.Sprintf("duplicate device name %q", row.Name))
		}
		seenNames[row.Name] = true

		device := model.Device{
			ID:            row.ID,
			Name:          row.Name,
			Host:          row.Host,
			Transport:     model.Transport(row.Transport),
			Port:          row.Port,
			Username:      row.Username,
			EncryptedPass: row.EncryptedPass,
			Country:       row.Country,
			Platform:      model.Platform(row.Platform),
		}
		inv.byID[device.ID] = device
		inv.ordered = append(inv.ordered, device)
	}

	return inv, nil
}

// Resolve satisfies scheduler.DeviceResolver: looks up a set of device
// ids, silently omitting any id the inventory doesn't recognise (the
// scheduler's connect phase treats a missing entry as a per-device
// connection failure, not a fatal error for the whole job).
func (inv *Inventory) Resolve(deviceIDs []string) (map[string]model.Device, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make(map[string]model.Device, len(deviceIDs))
	for _, id := range deviceIDs {
		if d, ok := inv.byID[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

// Devices satisfies topology.Inventory: every recognised device, in
// load order.
func (inv *Inventory) Devices() ([]model.Device, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]model.Device, len(inv.ordered))
	copy(out, inv.ordered)
	return out, nil
}
