package checkpoint

import (
	"fmt"

	"github.com/google/uuid"
)

// Snapshotter is implemented by *ensemble.Ensemble.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Step() int64
}

// Restorer is implemented by *ensemble.Ensemble.
type Restorer interface {
	Restore(data []byte) error
}

// Checkpoint saves the current state of src under run.
func (s *Store) Checkpoint(run uuid.UUID, src Snapshotter) error {
	data, err := src.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return s.Save(run, src.Step(), data)
}

// Resume restores dst from the latest checkpoint of run and returns its
// step.
func (s *Store) Resume(run uuid.UUID, dst Restorer) (int64, error) {
	step, data, err := s.Latest(run)
	if err != nil {
		return 0, err
	}
	if err := dst.Restore(data); err != nil {
		return 0, fmt.Errorf("restore %s@%d: %w", run, step, err)
	}
	return step, nil
}
