package learner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// Checkpoint component names, used as sub-directories under
// <logDir>/checkpoints.
const (
	EncoderCheckpoint = "representation_encoder"
	DecoderCheckpoint = "loss_decoder"
)

// CheckpointPath returns the file a component checkpoint for
// the given epoch is stored at.
func CheckpointPath(logDir, component string, epoch int) string {
	return filepath.Join(logDir, "checkpoints", component,
		fmt.Sprintf("%d_epochs.bin", epoch))
}

// SaveCheckpoint serializes obj and writes it to the
// checkpoint file for the component and epoch.
func SaveCheckpoint(logDir, component string, epoch int,
	obj serializer.Serializer) error {
	path := CheckpointPath(logDir, component, epoch)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	data, err := serializer.SerializeWithType(obj)
	if err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save checkpoint", err)
	}
	return nil
}

// LoadCheckpoint reads back a checkpoint written by
// SaveCheckpoint.
//
// The result has whatever type the component was saved as;
// callers assert the concrete type they expect.
func LoadCheckpoint(logDir, component string,
	epoch int) (interface{}, error) {
	data, err := os.ReadFile(CheckpointPath(logDir, component, epoch))
	if err != nil {
		return nil, essentials.AddCtx("load checkpoint", err)
	}
	obj, err := serializer.DeserializeWithType(data)
	if err != nil {
		return nil, essentials.AddCtx("load checkpoint", err)
	}
	return obj, nil
}
