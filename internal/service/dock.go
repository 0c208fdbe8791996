package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arqgene/moldock/internal/docking"
	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/log"
)

// ErrNoResults means no docking run has produced a manifest yet.
var ErrNoResults = errors.New("no results available")

// ErrNotPrepared means the receptor or ligand slot is empty.
var ErrNotPrepared = errors.New("please upload files first")

// Dock runs the interactive docking stage against the prepared receptor and
// ligand. Concurrent submissions share a single run through singleflight.
// A nil box requests blind docking over the whole receptor.
func (o *Orchestrator) Dock(ctx context.Context, box *structure.GridBox) ([]PoseResult, error) {
	results, err, _ := o.dockGroup.Do("dock", func() (any, error) {
		return o.runDock(ctx, box)
	})
	if err != nil {
		return nil, err
	}
	return results.([]PoseResult), nil
}

func (o *Orchestrator) runDock(ctx context.Context, box *structure.GridBox) ([]PoseResult, error) {
	receptor := o.receptorPath()
	ligand := o.ligandPath()
	if !fileExists(receptor) || !fileExists(ligand) {
		return nil, ErrNotPrepared
	}

	if err := o.clearPoses(); err != nil {
		return nil, fmt.Errorf("clear poses directory: %w", err)
	}

	gridBox, err := o.resolveBox(receptor, box)
	if err != nil {
		return nil, err
	}

	settings := o.dockingSettings()
	affinities, err := o.engine.Run(ctx, docking.Params{
		Receptor:       receptor,
		Ligand:         ligand,
		Output:         o.allPosesPath(),
		NumModes:       settings.NumModes,
		Exhaustiveness: settings.Exhaustiveness,
		Box:            gridBox,
	})
	if err != nil {
		return nil, err
	}

	results, err := o.renderResults(ctx, receptor, affinities)
	if err != nil {
		return nil, err
	}

	if err := o.writeManifest(results); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveBox passes a user-supplied box through verbatim; without one the
// search covers the receptor's whole bounding box plus padding.
func (o *Orchestrator) resolveBox(receptor string, box *structure.GridBox) (structure.GridBox, error) {
	if box != nil {
		return *box, nil
	}
	derived, err := structure.DeriveGridBox(receptor, o.cfg.Docking.BoxPadding)
	if err != nil {
		return structure.GridBox{}, fmt.Errorf("derive search box: %w", err)
	}
	log.Info("Derived search box: center (%.1f, %.1f, %.1f) size (%.1f, %.1f, %.1f)",
		derived.CenterX, derived.CenterY, derived.CenterZ,
		derived.SizeX, derived.SizeY, derived.SizeZ)
	return derived, nil
}

// renderResults splits the multi-pose output, assembles a receptor+pose
// complex per pose, and converts each complex to PDB for the viewer.
func (o *Orchestrator) renderResults(ctx context.Context, receptor string, affinities []float64) ([]PoseResult, error) {
	poseFiles, err := structure.SplitPoses(o.allPosesPath(), o.cfg.Workspace.PosesDir)
	if err != nil {
		return nil, fmt.Errorf("split poses: %w", err)
	}

	results := make([]PoseResult, 0, len(poseFiles))
	for i, poseFile := range poseFiles {
		if i >= len(affinities) {
			break
		}
		n := i + 1
		complexPDBQT := filepath.Join(o.cfg.Workspace.PosesDir, fmt.Sprintf("complex_%d.pdbqt", n))
		complexPDB := filepath.Join(o.cfg.Workspace.PosesDir, fmt.Sprintf("complex_%d.pdb", n))

		if err := structure.CombineComplex(receptor, poseFile, complexPDBQT); err != nil {
			log.Error("Failed to assemble complex for pose %d: %v", n, err)
			continue
		}
		if err := o.converter.ConvertToPDB(ctx, complexPDBQT, complexPDB); err != nil {
			log.Error("Failed to convert complex %d to PDB: %v", n, err)
			continue
		}
		results = append(results, PoseResult{
			Pose:     n,
			Affinity: affinities[i],
			Path:     fmt.Sprintf("data/poses/complex_%d.pdb", n),
		})
	}
	return results, nil
}

// Results returns the manifest of the most recent docking run.
func (o *Orchestrator) Results() ([]PoseResult, error) {
	data, err := os.ReadFile(o.resultsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoResults
		}
		return nil, err
	}
	var results []PoseResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results manifest: %w", err)
	}
	return results, nil
}

func (o *Orchestrator) writeManifest(results []PoseResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	tmp := o.resultsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, o.resultsPath())
}

func (o *Orchestrator) clearPoses() error {
	entries, err := os.ReadDir(o.cfg.Workspace.PosesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(o.cfg.Workspace.PosesDir, 0o755)
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(o.cfg.Workspace.PosesDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
