package service

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/arqgene/moldock/internal/config"
	"github.com/arqgene/moldock/internal/jobs"
)

const (
	receptorFileName = "protein.pdbqt"
	ligandFileName   = "ligand.pdbqt"
	allPosesFileName = "all_poses.pdbqt"
	resultsFileName  = "results.json"
)

// Orchestrator sequences the docking pipeline: acquire, convert, verify,
// dock, render. One interactive workspace lives under the data directory
// and is overwritten by the next run.
type Orchestrator struct {
	cfg      config.Config
	settings *config.RuntimeSettingsStore

	converter Converter
	engine    Docker
	alphafold StructureFetcher
	uniprot   SequenceFetcher
	esmfold   StructurePredictor
	pubchem   CompoundFetcher

	queue    *jobs.Queue
	recorder FileRecorder

	dockGroup singleflight.Group
}

type Option func(*Orchestrator)

// WithQueue attaches the batch job queue.
func WithQueue(queue *jobs.Queue) Option {
	return func(o *Orchestrator) {
		o.queue = queue
	}
}

// WithFileRecorder attaches batch output file tracking.
func WithFileRecorder(recorder FileRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithRuntimeSettings attaches the tunable docking parameter store.
func WithRuntimeSettings(settings *config.RuntimeSettingsStore) Option {
	return func(o *Orchestrator) {
		o.settings = settings
	}
}

func NewOrchestrator(
	cfg config.Config,
	converter Converter,
	engine Docker,
	alphafold StructureFetcher,
	uniprot SequenceFetcher,
	esmfold StructurePredictor,
	pubchem CompoundFetcher,
	opts ...Option,
) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		converter: converter,
		engine:    engine,
		alphafold: alphafold,
		uniprot:   uniprot,
		esmfold:   esmfold,
		pubchem:   pubchem,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := os.MkdirAll(cfg.Workspace.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace.PosesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create poses directory: %w", err)
	}
	return o, nil
}

func (o *Orchestrator) receptorPath() string {
	return filepath.Join(o.cfg.Workspace.DataDir, receptorFileName)
}

func (o *Orchestrator) ligandPath() string {
	return filepath.Join(o.cfg.Workspace.DataDir, ligandFileName)
}

func (o *Orchestrator) allPosesPath() string {
	return filepath.Join(o.cfg.Workspace.DataDir, allPosesFileName)
}

func (o *Orchestrator) resultsPath() string {
	return filepath.Join(o.cfg.Workspace.DataDir, resultsFileName)
}

// dockingSettings resolves the current tunable parameters, falling back to
// the static configuration when no store is attached.
func (o *Orchestrator) dockingSettings() config.RuntimeSettings {
	if o.settings != nil {
		if settings, err := o.settings.GetRuntimeSettings(); err == nil {
			return settings
		}
	}
	return o.cfg.RuntimeSettings()
}
