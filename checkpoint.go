package dcgan_go

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrCheckpointNotFound There is nothing to restore. Caller should go on with fresh parameters
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointCorrupted Checkpoint directory exists, but pointer or snapshot can't be read
	ErrCheckpointCorrupted = errors.New("checkpoint corrupted")
)

const (
	checkpointPointerFile = "checkpoint"
	checkpointPrefix      = "ckpt-"
	checkpointExt         = ".gob"
)

var checkpointNameRe = regexp.MustCompile(`^ckpt-(\d+)\.gob$`)

// ParamRecord Plain copy of a single learnable
type ParamRecord struct {
	Name  string
	Shape []int
	Data  []float64
}

// Snapshot Everything needed to resume training or to run sampling
type Snapshot struct {
	ID                     int
	Generator              []ParamRecord
	Discriminator          []ParamRecord
	GeneratorOptimizer     OptimizerState
	DiscriminatorOptimizer OptimizerState
}

// CheckpointManager Keeps bounded ring of snapshots in a directory
//
// Layout:
// <dir>/ckpt-<id>.gob - gob encoded Snapshot
// <dir>/checkpoint - name of the latest snapshot file
//
type CheckpointManager struct {
	dir    string
	keep   int
	nextID int
}

// NewCheckpointManager Prepares manager for the directory. IDs continue after the largest ID already present in the directory
//
// dir - directory for checkpoints (created on first Save)
// keep - how many latest checkpoints are retained
//
func NewCheckpointManager(dir string, keep int) (*CheckpointManager, error) {
	if keep < 1 {
		return nil, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("checkpoints retention must be positive, but got %d", keep))
	}
	manager := &CheckpointManager{
		dir:    dir,
		keep:   keep,
		nextID: 1,
	}
	ids, err := manager.Checkpoints()
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		manager.nextID = ids[len(ids)-1] + 1
	}
	return manager, nil
}

// Dir Returns checkpoints directory
func (manager *CheckpointManager) Dir() string {
	return manager.dir
}

// Save Writes snapshot under next ID, moves pointer onto it and prunes the oldest ones. Returns path of written file
func (manager *CheckpointManager) Save(snap *Snapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("Can't save nil snapshot")
	}
	if err := os.MkdirAll(manager.dir, 0755); err != nil {
		return "", errors.Wrap(err, "Can't create checkpoints directory")
	}
	id := manager.nextID
	fname := checkpointFileName(id)
	stored := *snap
	stored.ID = id
	err := writeFileAtomic(manager.dir, fname, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(&stored)
	})
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("Can't write checkpoint %d", id))
	}
	err = writeFileAtomic(manager.dir, checkpointPointerFile, func(f *os.File) error {
		_, err := f.WriteString(fname + "\n")
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "Can't update checkpoint pointer")
	}
	manager.nextID = id + 1
	snap.ID = id
	if err = manager.prune(); err != nil {
		return "", err
	}
	return filepath.Join(manager.dir, fname), nil
}

// RestoreLatest Loads snapshot the pointer refers to
func (manager *CheckpointManager) RestoreLatest() (*Snapshot, error) {
	pointer, err := os.ReadFile(filepath.Join(manager.dir, checkpointPointerFile))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("can't read checkpoint pointer: %s", err))
		}
		// No pointer: benign only when there are no snapshots at all
		ids, listErr := manager.Checkpoints()
		if listErr != nil {
			return nil, listErr
		}
		if len(ids) == 0 {
			return nil, ErrCheckpointNotFound
		}
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("checkpoint pointer is missing, but %d snapshots exist", len(ids)))
	}
	fname := strings.TrimSpace(string(pointer))
	match := checkpointNameRe.FindStringSubmatch(fname)
	if match == nil {
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("checkpoint pointer refers to '%s'", fname))
	}
	id, _ := strconv.Atoi(match[1])
	f, err := os.Open(filepath.Join(manager.dir, fname))
	if err != nil {
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("can't open '%s': %s", fname, err))
	}
	defer f.Close()
	snap := &Snapshot{}
	if err = gob.NewDecoder(f).Decode(snap); err != nil {
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("can't decode '%s': %s", fname, err))
	}
	if snap.ID != id {
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("'%s' holds snapshot %d", fname, snap.ID))
	}
	if err = snap.validate(); err != nil {
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("'%s': %s", fname, err))
	}
	return snap, nil
}

// Checkpoints Returns retained IDs in ascending order. Missing directory means no checkpoints
func (manager *CheckpointManager) Checkpoints() ([]int, error) {
	entries, err := os.ReadDir(manager.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(ErrCheckpointCorrupted, fmt.Sprintf("can't list checkpoints directory: %s", err))
	}
	ids := []int{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := checkpointNameRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		id, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (manager *CheckpointManager) prune() error {
	ids, err := manager.Checkpoints()
	if err != nil {
		return err
	}
	for len(ids) > manager.keep {
		if err := os.Remove(filepath.Join(manager.dir, checkpointFileName(ids[0]))); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, fmt.Sprintf("Can't remove checkpoint %d", ids[0]))
		}
		ids = ids[1:]
	}
	return nil
}

func checkpointFileName(id int) string {
	return fmt.Sprintf("%s%d%s", checkpointPrefix, id, checkpointExt)
}

// writeFileAtomic Writes into temporary file in the same directory and renames it
func writeFileAtomic(dir, name string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err = write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err = os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (snap *Snapshot) validate() error {
	for _, group := range [][]ParamRecord{snap.Generator, snap.Discriminator} {
		for _, rec := range group {
			size := 1
			for _, d := range rec.Shape {
				size *= d
			}
			if size != len(rec.Data) {
				return fmt.Errorf("parameter '%s' of shape %v holds %d values", rec.Name, rec.Shape, len(rec.Data))
			}
		}
	}
	return nil
}

// recordParams Deep copies values of learnables
func recordParams(nodes gorgonia.Nodes) ([]ParamRecord, error) {
	records := make([]ParamRecord, 0, len(nodes))
	for _, n := range nodes {
		data, err := float64Data(n.Value())
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't access value of '%s'", n.Name()))
		}
		records = append(records, ParamRecord{
			Name:  n.Name(),
			Shape: append([]int(nil), n.Shape()...),
			Data:  append([]float64(nil), data...),
		})
	}
	return records, nil
}

// restoreParams Copies records into learnables' values in place (matched by name, shapes must agree)
func restoreParams(nodes gorgonia.Nodes, records []ParamRecord) error {
	byName := make(map[string]ParamRecord, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}
	if len(byName) != len(nodes) {
		return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("snapshot has %d parameters, but network has %d", len(byName), len(nodes)))
	}
	for _, n := range nodes {
		rec, ok := byName[n.Name()]
		if !ok {
			return fmt.Errorf("snapshot has no parameter '%s'", n.Name())
		}
		if !tensor.Shape(rec.Shape).Eq(n.Shape()) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("parameter '%s' has shape %v, but snapshot holds %v", n.Name(), n.Shape(), rec.Shape))
		}
		data, err := float64Data(n.Value())
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access value of '%s'", n.Name()))
		}
		if len(data) != len(rec.Data) {
			return errors.Wrap(ErrShapeMismatch, fmt.Sprintf("parameter '%s' has %d values, but snapshot holds %d", n.Name(), len(data), len(rec.Data)))
		}
		copy(data, rec.Data)
	}
	return nil
}
