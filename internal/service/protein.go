package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arqgene/moldock/internal/fetch"
	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/file"
	"github.com/arqgene/moldock/pkg/log"
)

const protonationPH = 7.0

// PrepareProtein acquires a receptor structure from one of the three
// sources, cleans and converts it to PDBQT, and verifies the result.
func (o *Orchestrator) PrepareProtein(ctx context.Context, input ProteinInput) (*PrepareResult, error) {
	switch {
	case input.FilePath != "":
		report, err := o.prepareReceptor(ctx, input.FilePath)
		if err != nil {
			return nil, fmt.Errorf("protein preparation failed: %w", err)
		}
		return &PrepareResult{
			Message:      "Protein structure cleaned and prepared successfully",
			Verification: report,
		}, nil

	case input.UniProtID != "":
		rawPDB, err := o.acquireStructure(ctx, input.UniProtID)
		if err != nil {
			return nil, err
		}
		report, err := o.prepareReceptor(ctx, rawPDB)
		if err != nil {
			return nil, fmt.Errorf("preparation failed: %w", err)
		}
		return &PrepareResult{
			Message:      "Structure retrieved and prepared successfully",
			UniProtID:    input.UniProtID,
			Verification: report,
		}, nil

	case input.ProteinName != "":
		accession, fullName, err := o.uniprot.SearchByName(ctx, input.ProteinName)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		rawPDB, err := o.acquireStructure(ctx, accession)
		if err != nil {
			return nil, err
		}
		report, err := o.prepareReceptor(ctx, rawPDB)
		if err != nil {
			return nil, fmt.Errorf("protein preparation failed: %w", err)
		}
		return &PrepareResult{
			Message:      fmt.Sprintf("Structure for %q retrieved and prepared successfully", fullName),
			UniProtID:    accession,
			Verification: report,
		}, nil

	default:
		return nil, fmt.Errorf("please provide either a file, ID, or name")
	}
}

// acquireStructure downloads the predicted structure for an accession,
// falling back to sequence-based prediction when no pre-computed model
// exists. Returns the path to the raw PDB.
func (o *Orchestrator) acquireStructure(ctx context.Context, accession string) (string, error) {
	rawPDB := filepath.Join(o.cfg.Workspace.DataDir, "raw_"+file.SafeName(accession)+".pdb")
	if err := o.acquireStructureTo(ctx, accession, rawPDB); err != nil {
		return "", err
	}
	return rawPDB, nil
}

func (o *Orchestrator) acquireStructureTo(ctx context.Context, accession, rawPDB string) error {
	err := o.alphafold.FetchStructure(ctx, accession, rawPDB)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fetch.ErrNotFound) {
		return fmt.Errorf("structure retrieval failed: %w", err)
	}

	log.Info("No pre-computed model for %s, predicting from sequence", accession)
	fasta, err := o.uniprot.FetchFASTA(ctx, accession)
	if err != nil {
		return fmt.Errorf("structure retrieval failed: %w", err)
	}
	if err := o.esmfold.Predict(ctx, fasta, rawPDB); err != nil {
		return fmt.Errorf("structure retrieval failed: %w", err)
	}
	return nil
}

// prepareReceptor runs the receptor pipeline into the shared interactive
// slot.
func (o *Orchestrator) prepareReceptor(ctx context.Context, inputPDB string) (*structure.Report, error) {
	return o.prepareReceptorTo(ctx, inputPDB, o.receptorPath())
}

// prepareReceptorTo runs clean, protonation, and PDBQT conversion, then
// verifies the output. A protonation failure is downgraded to a warning and
// the cleaned structure is converted as-is. Intermediate files are derived
// from the output name so concurrent batch items do not clobber each other.
func (o *Orchestrator) prepareReceptorTo(ctx context.Context, inputPDB, outputPDBQT string) (*structure.Report, error) {
	base := strings.TrimSuffix(outputPDBQT, filepath.Ext(outputPDBQT))
	cleanedPDB := base + "_cleaned.pdb"
	if err := structure.CleanProtein(inputPDB, cleanedPDB, structure.DefaultCleanOptions()); err != nil {
		return nil, err
	}

	finalPDB := cleanedPDB
	protonatedPDB := base + "_h.pdb"
	if err := o.converter.AddHydrogens(ctx, cleanedPDB, protonatedPDB, protonationPH); err != nil {
		log.Warn("Hydrogen addition failed, proceeding without hydrogens: %v", err)
	} else {
		finalPDB = protonatedPDB
	}

	if err := o.converter.ConvertToPDBQT(ctx, finalPDB, outputPDBQT, structure.KindProtein); err != nil {
		return nil, err
	}

	report := structure.VerifyPDBQT(outputPDBQT, structure.KindProtein)
	if !report.Valid {
		return &report, fmt.Errorf("receptor verification failed: %s", report.Error)
	}
	return &report, nil
}

// FetchFASTA resolves a UniProt ID or protein name to a FASTA sequence.
func (o *Orchestrator) FetchFASTA(ctx context.Context, uniprotID, proteinName string) (*FASTAResult, error) {
	uniprotID = strings.TrimSpace(uniprotID)
	proteinName = strings.TrimSpace(proteinName)

	if uniprotID == "" && proteinName != "" {
		accession, _, err := o.uniprot.SearchByName(ctx, proteinName)
		if err != nil {
			return nil, err
		}
		uniprotID = accession
	}
	if uniprotID == "" {
		return nil, fmt.Errorf("protein ID or name required")
	}

	fasta, err := o.uniprot.FetchFASTA(ctx, uniprotID)
	if err != nil {
		return nil, err
	}
	return &FASTAResult{
		FASTA:       fasta,
		UniProtID:   uniprotID,
		ProteinName: proteinName,
	}, nil
}

// PredictStructure folds a sequence (given directly or resolved from an
// ID/name) with the prediction service, then prepares the result as the
// active receptor.
func (o *Orchestrator) PredictStructure(ctx context.Context, fasta, uniprotID, proteinName string) (*PrepareResult, error) {
	fasta = strings.TrimSpace(fasta)
	if fasta == "" {
		resolved, err := o.FetchFASTA(ctx, uniprotID, proteinName)
		if err != nil {
			return nil, fmt.Errorf("sequence or protein ID required for prediction: %w", err)
		}
		fasta = resolved.FASTA
		uniprotID = resolved.UniProtID
	}

	predictedPDB := filepath.Join(o.cfg.Workspace.DataDir, "protein.pdb")
	if err := o.esmfold.Predict(ctx, fasta, predictedPDB); err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	report, err := o.prepareReceptor(ctx, predictedPDB)
	if err != nil {
		return nil, fmt.Errorf("preparation of predicted structure failed: %w", err)
	}
	return &PrepareResult{
		Message:      "Structure predicted and prepared successfully",
		UniProtID:    uniprotID,
		Verification: report,
	}, nil
}
