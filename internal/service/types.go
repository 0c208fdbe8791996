package service

import (
	"context"

	"github.com/arqgene/moldock/internal/docking"
	"github.com/arqgene/moldock/internal/fetch"
	"github.com/arqgene/moldock/internal/structure"
)

// Converter is the OpenBabel surface the pipeline depends on.
type Converter interface {
	ConvertToPDBQT(ctx context.Context, input, output string, kind structure.Kind) error
	AddHydrogens(ctx context.Context, input, output string, ph float64) error
	GenerateSDF(ctx context.Context, smiles, output string) error
	ConvertToPDB(ctx context.Context, input, output string) error
}

// Docker is the docking engine surface the pipeline depends on.
type Docker interface {
	Run(ctx context.Context, params docking.Params) ([]float64, error)
}

// StructureFetcher downloads a pre-computed structure for an accession.
type StructureFetcher interface {
	FetchStructure(ctx context.Context, accession, outputPath string) error
}

// SequenceFetcher resolves protein names and fetches FASTA sequences.
type SequenceFetcher interface {
	FetchFASTA(ctx context.Context, accession string) (string, error)
	SearchByName(ctx context.Context, proteinName string) (accession, fullName string, err error)
}

// StructurePredictor folds a sequence into a structure on demand.
type StructurePredictor interface {
	Predict(ctx context.Context, fasta, outputPath string) error
}

// CompoundFetcher resolves compound names to SMILES.
type CompoundFetcher interface {
	FetchCompound(ctx context.Context, name string) (*fetch.Compound, error)
}

// FileRecorder tracks files produced by batch jobs so the retention sweep
// can account for them.
type FileRecorder interface {
	AddJobFile(ctx context.Context, jobID, path string) error
}

// ProteinInput selects exactly one protein source.
type ProteinInput struct {
	FilePath    string
	UniProtID   string
	ProteinName string
}

// LigandInput selects exactly one ligand source.
type LigandInput struct {
	FilePath     string
	CompoundName string
}

// PrepareResult reports a completed preparation stage.
type PrepareResult struct {
	Message         string            `json:"message"`
	UniProtID       string            `json:"uniprot_id,omitempty"`
	Verification    *structure.Report `json:"verification,omitempty"`
	MolecularWeight float64           `json:"molecular_weight,omitempty"`
	SMILES          string            `json:"smiles,omitempty"`
	CID             string            `json:"cid,omitempty"`
}

// PoseResult is one entry of the results manifest.
type PoseResult struct {
	Pose     int     `json:"pose"`
	Affinity float64 `json:"affinity"`
	Path     string  `json:"path"`
}

// FASTAResult carries a resolved sequence back to the caller.
type FASTAResult struct {
	FASTA       string `json:"fasta"`
	UniProtID   string `json:"uniprot_id"`
	ProteinName string `json:"protein_name,omitempty"`
}

// BatchPrepareRequest lists saved upload paths and identifier lists to
// prepare in bulk.
type BatchPrepareRequest struct {
	ProteinFiles []string
	LigandFiles  []string
	ProteinIDs   []string
	ProteinNames []string
	LigandNames  []string
}

// BatchPrepareResult names the receptor/ligand PDBQT files that survived
// preparation, by base name.
type BatchPrepareResult struct {
	Message  string   `json:"message"`
	Proteins []string `json:"proteins"`
	Ligands  []string `json:"ligands"`
}
