package structure

// Kind distinguishes receptor and ligand checks, which have different
// plausible size ranges and format requirements.
type Kind string

const (
	KindProtein Kind = "protein"
	KindLigand  Kind = "ligand"
)

// Stats are per-file statistics extracted while scanning ATOM/HETATM records.
type Stats struct {
	FileSizeKB        float64  `json:"file_size_kb"`
	AtomCount         int      `json:"atom_count"`
	ChainCount        int      `json:"chain_count,omitempty"`
	Chains            []string `json:"chains,omitempty"`
	ResidueCount      int      `json:"residue_count,omitempty"`
	HasCoordinates    bool     `json:"has_coordinates"`
	HasPartialCharges bool     `json:"has_partial_charges,omitempty"`
	HasAtomTypes      bool     `json:"has_atom_types,omitempty"`
	HasRoot           bool     `json:"has_root,omitempty"`
}

// Report is the outcome of a structure verification pass. A report can be
// valid and still carry warnings; warnings never block the pipeline.
type Report struct {
	Valid      bool     `json:"valid"`
	Error      string   `json:"error,omitempty"`
	Statistics Stats    `json:"statistics"`
	Warnings   []string `json:"warnings,omitempty"`
}

// GridBox is a docking search region: center plus extents in angstroms.
type GridBox struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	CenterZ float64 `json:"center_z"`
	SizeX   float64 `json:"size_x"`
	SizeY   float64 `json:"size_y"`
	SizeZ   float64 `json:"size_z"`
}
