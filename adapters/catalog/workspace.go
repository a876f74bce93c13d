package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/errors"
	"stratval/internal/logging"
	"stratval/ports"
)

const (
	strategiesDir  = "strategies"
	validationsDir = "validations"
	stateFile      = "state.json"
)

// Workspace is the file-tree store: candidates live under
// strategies/<status>/ as YAML, run artifacts under validations/<id>/.
// All writes go through a temp file and a rename, so a crashed process
// never leaves a half-written file behind.
type Workspace struct {
	root string
	log  zerolog.Logger
}

// NewWorkspace opens (and if needed creates) a workspace rooted at
// root.
func NewWorkspace(root string) (*Workspace, error) {
	for _, status := range strategy.AllStatuses() {
		dir := filepath.Join(root, strategiesDir, string(status))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create workspace")
		}
	}
	if err := os.MkdirAll(filepath.Join(root, validationsDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create workspace")
	}
	return &Workspace{root: root, log: logging.For("workspace")}, nil
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) candidatePath(status strategy.Status, id core.StrategyID) string {
	return filepath.Join(w.root, strategiesDir, string(status), string(id)+".yaml")
}

// findCandidate locates a candidate file across all status buckets.
func (w *Workspace) findCandidate(id core.StrategyID) (string, strategy.Status, error) {
	for _, status := range strategy.AllStatuses() {
		path := w.candidatePath(status, id)
		if _, err := os.Stat(path); err == nil {
			return path, status, nil
		}
	}
	return "", "", core.NewNotFoundError("strategy", string(id))
}

// Load reads a candidate from whichever bucket holds it. The file's
// bucket wins over any status field inside the file.
func (w *Workspace) Load(ctx context.Context, id core.StrategyID) (*strategy.Candidate, error) {
	path, status, err := w.findCandidate(id)
	if err != nil {
		return nil, err
	}
	return w.readCandidate(path, status)
}

func (w *Workspace) readCandidate(path string, status strategy.Status) (*strategy.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read candidate")
	}
	var cand strategy.Candidate
	if err := yaml.Unmarshal(data, &cand); err != nil {
		return nil, errors.Wrapf(err, "failed to parse candidate %s", filepath.Base(path))
	}
	cand.Status = status
	return &cand, nil
}

// List returns all candidates in a status bucket, skipping files that
// fail to parse.
func (w *Workspace) List(ctx context.Context, status strategy.Status) ([]*strategy.Candidate, error) {
	dir := filepath.Join(w.root, strategiesDir, string(status))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list candidates")
	}

	var out []*strategy.Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		cand, err := w.readCandidate(filepath.Join(dir, e.Name()), status)
		if err != nil {
			w.log.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable candidate")
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// Save writes the candidate into its status bucket, defaulting to
// pending.
func (w *Workspace) Save(ctx context.Context, cand *strategy.Candidate) error {
	if cand.ID == "" {
		return errors.InvalidInput("candidate has no id")
	}
	if cand.Status == "" {
		cand.Status = strategy.StatusPending
	}
	data, err := yaml.Marshal(cand)
	if err != nil {
		return errors.Wrap(err, "failed to encode candidate")
	}
	return atomicWrite(w.candidatePath(cand.Status, cand.ID), data)
}

// Move relocates a candidate to another bucket. Moving a candidate to
// the bucket it is already in is a no-op.
func (w *Workspace) Move(ctx context.Context, id core.StrategyID, to strategy.Status) error {
	path, from, err := w.findCandidate(id)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}

	cand, err := w.readCandidate(path, from)
	if err != nil {
		return err
	}
	cand.Status = to

	data, err := yaml.Marshal(cand)
	if err != nil {
		return errors.Wrap(err, "failed to encode candidate")
	}
	if err := atomicWrite(w.candidatePath(to, id), data); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "failed to remove old candidate file")
	}
	w.log.Info().Str("strategy", string(id)).
		Str("from", string(from)).Str("to", string(to)).Msg("candidate moved")
	return nil
}

// ResetStatus returns a candidate to pending so it can be re-run.
func (w *Workspace) ResetStatus(ctx context.Context, id core.StrategyID) error {
	return w.Move(ctx, id, strategy.StatusPending)
}

// RunDir returns the artifact directory for a strategy's validation
// run.
func (w *Workspace) RunDir(id core.StrategyID) string {
	return filepath.Join(w.root, validationsDir, string(id))
}

// SaveArtifact writes a named artifact into the run directory.
func (w *Workspace) SaveArtifact(ctx context.Context, id core.StrategyID, name string, data []byte) error {
	dir := w.RunDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create run directory")
	}
	return atomicWrite(filepath.Join(dir, name), data)
}

// LoadArtifact reads a named artifact from the run directory.
func (w *Workspace) LoadArtifact(ctx context.Context, id core.StrategyID, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(w.RunDir(id), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("artifact", fmt.Sprintf("%s/%s", id, name))
		}
		return nil, errors.Wrap(err, "failed to read artifact")
	}
	return data, nil
}

// SaveState persists the run's state record.
func (w *Workspace) SaveState(ctx context.Context, rec *validation.StateRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode state record")
	}
	return w.SaveArtifact(ctx, rec.StrategyID, stateFile, data)
}

// LoadState reads the run's state record.
func (w *Workspace) LoadState(ctx context.Context, id core.StrategyID) (*validation.StateRecord, error) {
	data, err := w.LoadArtifact(ctx, id, stateFile)
	if err != nil {
		return nil, err
	}
	var rec validation.StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to parse state record")
	}
	return &rec, nil
}

// atomicWrite writes data to a temp file in the target directory and
// renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "failed to replace file")
	}
	return nil
}

// interface checks
var (
	_ ports.Catalog       = (*Workspace)(nil)
	_ ports.ArtifactStore = (*Workspace)(nil)
)
