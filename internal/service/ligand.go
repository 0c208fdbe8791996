package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/file"
	"github.com/arqgene/moldock/pkg/log"
)

// PrepareLigand acquires a ligand from an uploaded file or a compound name
// and converts it into the shared ligand slot.
func (o *Orchestrator) PrepareLigand(ctx context.Context, input LigandInput) (*PrepareResult, error) {
	switch {
	case input.FilePath != "":
		if err := o.prepareLigandFile(ctx, input.FilePath, o.ligandPath()); err != nil {
			return nil, fmt.Errorf("ligand preparation failed: %w", err)
		}
		report, weight, err := o.verifyLigand()
		if err != nil {
			return nil, err
		}
		return &PrepareResult{
			Message:         "Ligand file prepared successfully",
			Verification:    report,
			MolecularWeight: weight,
		}, nil

	case input.CompoundName != "":
		compound, err := o.pubchem.FetchCompound(ctx, input.CompoundName)
		if err != nil {
			return nil, fmt.Errorf("ligand generation failed: %w", err)
		}

		sdfPath := filepath.Join(o.cfg.Workspace.DataDir, "ligand_"+file.SafeName(compound.CID)+".sdf")
		if err := o.converter.GenerateSDF(ctx, compound.SMILES, sdfPath); err != nil {
			return nil, fmt.Errorf("ligand generation failed: %w", err)
		}
		if err := o.converter.ConvertToPDBQT(ctx, sdfPath, o.ligandPath(), structure.KindLigand); err != nil {
			return nil, fmt.Errorf("ligand generation failed: %w", err)
		}

		report, weight, err := o.verifyLigand()
		if err != nil {
			return nil, err
		}
		return &PrepareResult{
			Message:         fmt.Sprintf("Ligand %q generated successfully", input.CompoundName),
			Verification:    report,
			MolecularWeight: weight,
			SMILES:          compound.SMILES,
			CID:             compound.CID,
		}, nil

	default:
		return nil, fmt.Errorf("please provide either a file or compound name")
	}
}

// prepareLigandFile converts an upload to PDBQT. A file already in PDBQT
// format is copied verbatim.
func (o *Orchestrator) prepareLigandFile(ctx context.Context, input, output string) error {
	if file.Ext(input) == "pdbqt" {
		return copyFile(input, output)
	}
	return o.converter.ConvertToPDBQT(ctx, input, output, structure.KindLigand)
}

func (o *Orchestrator) verifyLigand() (*structure.Report, float64, error) {
	report := structure.VerifyPDBQT(o.ligandPath(), structure.KindLigand)
	if !report.Valid {
		return &report, 0, fmt.Errorf("ligand verification failed: %s", report.Error)
	}

	weight, err := structure.EstimateMolecularWeight(o.ligandPath())
	if err != nil {
		log.Warn("Molecular weight estimation failed: %v", err)
		weight = 0
	}
	return &report, weight, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
