package app

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"

	oqerrors "github.com/nasriyasoftware/Orchestriq-sub001/internal/errors"
	"github.com/nasriyasoftware/Orchestriq-sub001/pkg/engine"
)

const RecordSchemaVersion = "1.0"

// RunRecord lists the containers one create run produced. Creation is not
// rolled back on failure, so the record is how leftovers are found.
type RunRecord struct {
	SchemaVersion string                    `json:"schema_version"`
	RunID         string                    `json:"run_id"`
	TemplatePath  string                    `json:"template_path"`
	Containers    []engine.CreatedContainer `json:"containers"`
	Failure       string                    `json:"failure,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

func newRecord(templatePath string, result engine.CreateResult, runErr error) *RunRecord {
	record := &RunRecord{
		SchemaVersion: RecordSchemaVersion,
		RunID:         uuid.New().String(),
		TemplatePath:  templatePath,
		Containers:    result.Containers,
		CreatedAt:     time.Now().UTC(),
	}
	if record.Containers == nil {
		record.Containers = []engine.CreatedContainer{}
	}
	if runErr != nil {
		record.Failure = runErr.Error()
	}
	return record
}

// saveRecord replaces path atomically so a reader never sees a partial record.
func saveRecord(path string, record *RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return oqerrors.NewFileSystemError("write run record", "failed to serialize record", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return oqerrors.NewFileSystemError("write run record", "failed to write "+path, err)
	}
	return nil
}
