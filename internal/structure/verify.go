package structure

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// atomicWeights covers the elements the docking engine's atom typing emits.
var atomicWeights = map[string]float64{
	"H": 1.008, "C": 12.011, "N": 14.007, "O": 15.999,
	"F": 18.998, "P": 30.974, "S": 32.065, "CL": 35.453,
	"BR": 79.904, "I": 126.904,
}

func isAtomRecord(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

func parseCoords(line string) (x, y, z float64, ok bool) {
	if len(line) < 54 {
		return 0, 0, 0, false
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(line[30:38]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(line[38:46]), 64)
	z, errZ := strconv.ParseFloat(strings.TrimSpace(line[46:54]), 64)
	if errX != nil || errY != nil || errZ != nil {
		return 0, 0, 0, false
	}
	return x, y, z, true
}

// VerifyPDB scans a PDB file and reports atom, chain, and residue statistics.
func VerifyPDB(pdbFile string) Report {
	info, err := os.Stat(pdbFile)
	if err != nil {
		return Report{Valid: false, Error: "file not found"}
	}
	if info.Size() == 0 {
		return Report{Valid: false, Error: "file is empty"}
	}

	f, err := os.Open(pdbFile)
	if err != nil {
		return Report{Valid: false, Error: fmt.Sprintf("error reading PDB file: %v", err)}
	}
	defer f.Close()

	var (
		atomCount      int
		hasCoordinates bool
		warnings       []string
	)
	chains := make(map[string]struct{})
	residues := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !isAtomRecord(line) {
			continue
		}
		atomCount++

		if _, _, _, ok := parseCoords(line); ok {
			hasCoordinates = true
		}
		if len(line) >= 22 {
			if chain := strings.TrimSpace(line[21:22]); chain != "" {
				chains[chain] = struct{}{}
			}
		}
		if len(line) >= 26 {
			resName := strings.TrimSpace(line[17:20])
			resNum := strings.TrimSpace(line[22:26])
			if resName != "" && resNum != "" {
				residues[resName+"/"+resNum] = struct{}{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Report{Valid: false, Error: fmt.Sprintf("error reading PDB file: %v", err)}
	}

	sizeKB := math.Round(float64(info.Size())/1024*100) / 100
	if atomCount == 0 {
		return Report{
			Valid:      false,
			Error:      "no atoms found in PDB file",
			Statistics: Stats{FileSizeKB: sizeKB},
		}
	}

	if !hasCoordinates {
		warnings = append(warnings, "no valid 3D coordinates found")
	}
	if atomCount < 100 {
		warnings = append(warnings, fmt.Sprintf("very few atoms (%d), structure may be incomplete", atomCount))
	}
	if len(chains) == 0 {
		warnings = append(warnings, "no chain identifiers found")
	}

	chainList := make([]string, 0, len(chains))
	for c := range chains {
		chainList = append(chainList, c)
	}
	sort.Strings(chainList)

	return Report{
		Valid: true,
		Statistics: Stats{
			FileSizeKB:     sizeKB,
			AtomCount:      atomCount,
			ChainCount:     len(chains),
			Chains:         chainList,
			ResidueCount:   len(residues),
			HasCoordinates: hasCoordinates,
		},
		Warnings: warnings,
	}
}

// VerifyPDBQT scans a PDBQT file produced for the docking engine and checks
// that it carries coordinates, partial charges, atom types, and (for ligands)
// a ROOT record. The atom-count thresholds depend on the structure kind.
func VerifyPDBQT(pdbqtFile string, kind Kind) Report {
	info, err := os.Stat(pdbqtFile)
	if err != nil {
		return Report{Valid: false, Error: "file not found"}
	}
	if info.Size() == 0 {
		return Report{Valid: false, Error: "file is empty"}
	}

	f, err := os.Open(pdbqtFile)
	if err != nil {
		return Report{Valid: false, Error: fmt.Sprintf("error reading PDBQT file: %v", err)}
	}
	defer f.Close()

	var (
		atomCount      int
		hasCharges     bool
		hasAtomTypes   bool
		hasCoordinates bool
		rootFound      bool
		warnings       []string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ROOT") {
			rootFound = true
		}
		if !isAtomRecord(line) {
			continue
		}
		atomCount++

		if _, _, _, ok := parseCoords(line); ok {
			hasCoordinates = true
		}
		if len(line) >= 76 {
			if charge := strings.TrimSpace(line[70:76]); charge != "" {
				hasCharges = true
			}
		}
		if len(line) >= 79 {
			if atomType := strings.TrimSpace(line[77:79]); atomType != "" {
				hasAtomTypes = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Report{Valid: false, Error: fmt.Sprintf("error reading PDBQT file: %v", err)}
	}

	sizeKB := math.Round(float64(info.Size())/1024*100) / 100
	if atomCount == 0 {
		return Report{
			Valid:      false,
			Error:      "no atoms found in PDBQT file",
			Statistics: Stats{FileSizeKB: sizeKB},
		}
	}

	if !hasCoordinates {
		warnings = append(warnings, "no valid 3D coordinates found")
	}
	if !hasCharges {
		warnings = append(warnings, "no partial charges found, may affect docking accuracy")
	}
	if !hasAtomTypes {
		warnings = append(warnings, "no atom types found in PDBQT format")
	}

	switch kind {
	case KindProtein:
		if atomCount < 100 {
			warnings = append(warnings, fmt.Sprintf("very few atoms (%d) for a protein", atomCount))
		}
		if atomCount > 50000 {
			warnings = append(warnings, fmt.Sprintf("very large protein (%d atoms), docking may be slow", atomCount))
		}
	case KindLigand:
		if !rootFound {
			warnings = append(warnings, "no ROOT found, ligand may not be properly formatted")
		}
		if atomCount < 5 {
			warnings = append(warnings, fmt.Sprintf("very small ligand (%d atoms)", atomCount))
		}
		if atomCount > 150 {
			warnings = append(warnings, fmt.Sprintf("very large ligand (%d atoms), consider fragmentation", atomCount))
		}
	}

	return Report{
		Valid: true,
		Statistics: Stats{
			FileSizeKB:        sizeKB,
			AtomCount:         atomCount,
			HasCoordinates:    hasCoordinates,
			HasPartialCharges: hasCharges,
			HasAtomTypes:      hasAtomTypes,
			HasRoot:           rootFound,
		},
		Warnings: warnings,
	}
}

// EstimateMolecularWeight sums atomic weights over the PDBQT atom types.
// Returns 0 when no recognizable elements are present.
func EstimateMolecularWeight(pdbqtFile string) (float64, error) {
	f, err := os.Open(pdbqtFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !isAtomRecord(line) || len(line) < 79 {
			continue
		}
		atomType := strings.ToUpper(strings.TrimSpace(line[77:79]))
		if w, ok := atomicWeights[atomType]; ok {
			total += w
			continue
		}
		// Fall back to the leading element letter for hybridized types (NA, OA, HD).
		if len(atomType) > 0 {
			if w, ok := atomicWeights[atomType[:1]]; ok {
				total += w
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return math.Round(total*100) / 100, nil
}
