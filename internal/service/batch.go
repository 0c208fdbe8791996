package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arqgene/moldock/internal/docking"
	"github.com/arqgene/moldock/internal/jobs"
	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/file"
	"github.com/arqgene/moldock/pkg/log"
)

const (
	batchProteinPrefix = "batch_prot_"
	batchLigandPrefix  = "batch_lig_"
	batchRawPrefix     = "batch_raw_"
)

// PrepareBatch prepares many receptors and ligands in one call. Items are
// processed concurrently with a bounded worker count; a failing item is
// logged and skipped so one bad structure does not sink the batch.
func (o *Orchestrator) PrepareBatch(ctx context.Context, req BatchPrepareRequest) (*BatchPrepareResult, error) {
	var (
		mu       sync.Mutex
		proteins []string
		ligands  []string
	)
	addProtein := func(path string) {
		mu.Lock()
		proteins = append(proteins, filepath.Base(path))
		mu.Unlock()
	}
	addLigand := func(path string) {
		mu.Lock()
		ligands = append(ligands, filepath.Base(path))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Docking.BatchWorkers)

	for _, path := range req.ProteinFiles {
		g.Go(func() error {
			output := path + ".pdbqt"
			if _, err := o.prepareReceptorTo(gctx, path, output); err != nil {
				log.Error("Batch protein %s failed: %v", filepath.Base(path), err)
				return nil
			}
			addProtein(output)
			return nil
		})
	}

	for _, path := range req.LigandFiles {
		g.Go(func() error {
			output := path + ".pdbqt"
			if err := o.prepareLigandFile(gctx, path, output); err != nil {
				log.Error("Batch ligand %s failed: %v", filepath.Base(path), err)
				return nil
			}
			if report := structure.VerifyPDBQT(output, structure.KindLigand); !report.Valid {
				log.Error("Batch ligand %s failed verification: %s", filepath.Base(path), report.Error)
				return nil
			}
			addLigand(output)
			return nil
		})
	}

	for _, id := range trimList(req.ProteinIDs) {
		g.Go(func() error {
			if path, err := o.prepareBatchProteinByID(gctx, id); err != nil {
				log.Error("Batch protein ID %s failed: %v", id, err)
			} else {
				addProtein(path)
			}
			return nil
		})
	}

	for _, name := range trimList(req.ProteinNames) {
		g.Go(func() error {
			accession, _, err := o.uniprot.SearchByName(gctx, name)
			if err != nil {
				log.Error("Batch protein name %q failed: %v", name, err)
				return nil
			}
			if path, err := o.prepareBatchProteinByID(gctx, accession); err != nil {
				log.Error("Batch protein %q (%s) failed: %v", name, accession, err)
			} else {
				addProtein(path)
			}
			return nil
		})
	}

	for _, name := range trimList(req.LigandNames) {
		g.Go(func() error {
			output := filepath.Join(o.cfg.Workspace.DataDir, batchLigandPrefix+file.SafeName(name)+".pdbqt")
			if err := o.prepareBatchLigandByName(gctx, name, output); err != nil {
				log.Error("Batch ligand %q failed: %v", name, err)
				return nil
			}
			if report := structure.VerifyPDBQT(output, structure.KindLigand); !report.Valid {
				log.Error("Batch ligand %q failed verification: %s", name, report.Error)
				return nil
			}
			addLigand(output)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BatchPrepareResult{
		Message:  fmt.Sprintf("Prepared %d proteins and %d ligands", len(proteins), len(ligands)),
		Proteins: proteins,
		Ligands:  ligands,
	}, nil
}

func (o *Orchestrator) prepareBatchProteinByID(ctx context.Context, accession string) (string, error) {
	safe := file.SafeName(accession)
	rawPDB := filepath.Join(o.cfg.Workspace.DataDir, batchRawPrefix+safe+".pdb")
	output := filepath.Join(o.cfg.Workspace.DataDir, batchProteinPrefix+safe+".pdbqt")

	if err := o.acquireStructureTo(ctx, accession, rawPDB); err != nil {
		return "", err
	}
	if _, err := o.prepareReceptorTo(ctx, rawPDB, output); err != nil {
		return "", err
	}
	return output, nil
}

func (o *Orchestrator) prepareBatchLigandByName(ctx context.Context, name, output string) error {
	compound, err := o.pubchem.FetchCompound(ctx, name)
	if err != nil {
		return err
	}
	sdfPath := file.ReplaceExt(output, ".sdf")
	if err := o.converter.GenerateSDF(ctx, compound.SMILES, sdfPath); err != nil {
		return err
	}
	return o.converter.ConvertToPDBQT(ctx, sdfPath, output, structure.KindLigand)
}

// BatchDock enqueues one docking job per protein×ligand pair. File names
// are basenames of previously prepared batch PDBQT files.
func (o *Orchestrator) BatchDock(proteins, ligands []string) ([]*jobs.DockingJob, error) {
	if o.queue == nil {
		return nil, fmt.Errorf("batch docking is not configured")
	}
	if len(proteins) == 0 || len(ligands) == 0 {
		return nil, fmt.Errorf("no proteins or ligands specified for batch docking")
	}

	enqueued := make([]*jobs.DockingJob, 0, len(proteins)*len(ligands))
	for _, protein := range proteins {
		receptorPath := filepath.Join(o.cfg.Workspace.DataDir, filepath.Base(protein))
		if !fileExists(receptorPath) {
			continue
		}
		for _, ligand := range ligands {
			ligandPath := filepath.Join(o.cfg.Workspace.DataDir, filepath.Base(ligand))
			if !fileExists(ligandPath) {
				continue
			}

			proteinName := batchEntryName(protein, batchProteinPrefix)
			ligandName := batchEntryName(ligand, batchLigandPrefix)
			outputFile := filepath.Join(o.cfg.Workspace.DataDir,
				fmt.Sprintf("batch_%s_%s_out.pdbqt", proteinName, ligandName))

			job, _ := o.queue.Enqueue(jobs.EnqueueRequest{
				Source:    "batch",
				DedupeKey: filepath.Base(protein) + "|" + filepath.Base(ligand),
				Payload: jobs.JobPayload{
					ReceptorFile: receptorPath,
					LigandFile:   ligandPath,
					LigandName:   ligandName,
					OutputFile:   outputFile,
				},
			})
			enqueued = append(enqueued, job)
		}
	}
	return enqueued, nil
}

// ExecuteBatchJob is the queue executor: one full docking run for a
// prepared receptor/ligand pair, with a derived search box and the cheaper
// batch exhaustiveness.
func (o *Orchestrator) ExecuteBatchJob(ctx context.Context, job *jobs.DockingJob) ([]float64, error) {
	box, err := structure.DeriveGridBox(job.Payload.ReceptorFile, o.cfg.Docking.BoxPadding)
	if err != nil {
		return nil, fmt.Errorf("derive search box: %w", err)
	}

	settings := o.dockingSettings()
	affinities, err := o.engine.Run(ctx, docking.Params{
		Receptor:       job.Payload.ReceptorFile,
		Ligand:         job.Payload.LigandFile,
		Output:         job.Payload.OutputFile,
		NumModes:       settings.NumModes,
		Exhaustiveness: o.cfg.Docking.BatchExhaustiveness,
		Box:            box,
	})
	if err != nil {
		return nil, err
	}

	complexPDBQT := job.Payload.OutputFile + ".complex.pdbqt"
	complexPDB := strings.TrimSuffix(job.Payload.OutputFile, "_out.pdbqt") + "_complex.pdb"
	if err := structure.CombineComplex(job.Payload.ReceptorFile, job.Payload.OutputFile, complexPDBQT); err != nil {
		return nil, fmt.Errorf("assemble complex: %w", err)
	}
	if err := o.converter.ConvertToPDB(ctx, complexPDBQT, complexPDB); err != nil {
		return nil, fmt.Errorf("convert complex to PDB: %w", err)
	}

	o.recordJobFiles(ctx, job.ID, job.Payload.OutputFile, complexPDBQT, complexPDB)
	return affinities, nil
}

func (o *Orchestrator) recordJobFiles(ctx context.Context, jobID string, paths ...string) {
	if o.recorder == nil {
		return
	}
	for _, path := range paths {
		if err := o.recorder.AddJobFile(ctx, jobID, path); err != nil {
			log.Error("Failed to record output file %s for job %s: %v", path, jobID, err)
		}
	}
}

func batchEntryName(fileName, prefix string) string {
	name := strings.TrimSuffix(filepath.Base(fileName), ".pdbqt")
	return strings.TrimPrefix(name, prefix)
}

func trimList(values []string) []string {
	ret := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			ret = append(ret, v)
		}
	}
	return ret
}
