package structure

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

var standardResidues = map[string]struct{}{
	"ALA": {}, "ARG": {}, "ASN": {}, "ASP": {}, "CYS": {}, "GLN": {}, "GLU": {},
	"GLY": {}, "HIS": {}, "ILE": {}, "LEU": {}, "LYS": {}, "MET": {}, "PHE": {},
	"PRO": {}, "SER": {}, "THR": {}, "TRP": {}, "TYR": {}, "VAL": {},
	"SEC": {}, "PYL": {}, "ASX": {}, "GLX": {}, "UNK": {},
}

var waterResidues = map[string]struct{}{
	"HOH": {}, "WAT": {}, "H2O": {}, "TIP": {}, "TIP3": {}, "SOL": {},
}

// CleanOptions controls which records survive protein cleaning.
type CleanOptions struct {
	// KeepChain restricts output to one chain; empty keeps all chains.
	KeepChain string
	// RemoveWater drops water residues.
	RemoveWater bool
	// RemoveHetero drops HETATM records and non-standard residues.
	RemoveHetero bool
}

// DefaultCleanOptions matches what the docking engine expects from a
// receptor: chain A only, no solvent, no co-crystallized ligands.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		KeepChain:    "A",
		RemoveWater:  true,
		RemoveHetero: true,
	}
}

// CleanProtein rewrites a PDB file keeping only the requested protein
// content. It is a line-oriented cleaner, tolerant of malformed files
// that structural parsers reject.
func CleanProtein(inputPDB, outputPDB string, opts CleanOptions) error {
	in, err := os.Open(inputPDB)
	if err != nil {
		return fmt.Errorf("failed to open structure: %w", err)
	}
	defer in.Close()

	var (
		cleaned   []string
		atomCount int
		hasEnd    bool
	)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case isAtomRecord(line):
			if len(line) < 26 {
				continue
			}

			chainID := strings.TrimSpace(line[21:22])
			resName := strings.TrimSpace(line[17:20])

			if opts.KeepChain != "" && chainID != "" && chainID != opts.KeepChain {
				continue
			}
			if opts.RemoveWater {
				if _, isWater := waterResidues[resName]; isWater {
					continue
				}
			}
			if opts.RemoveHetero {
				if strings.HasPrefix(line, "HETATM") {
					continue
				}
				if _, isStandard := standardResidues[resName]; !isStandard {
					continue
				}
			}

			cleaned = append(cleaned, line)
			atomCount++

		case strings.HasPrefix(line, "TER"),
			strings.HasPrefix(line, "END"),
			strings.HasPrefix(line, "MODEL"),
			strings.HasPrefix(line, "ENDMDL"),
			strings.HasPrefix(line, "HEADER"),
			strings.HasPrefix(line, "TITLE"),
			strings.HasPrefix(line, "COMPND"):
			if strings.HasPrefix(line, "END") {
				hasEnd = true
			}
			cleaned = append(cleaned, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read structure: %w", err)
	}

	if atomCount == 0 {
		return fmt.Errorf("no valid protein atoms found after cleaning")
	}

	out, err := os.Create(outputPDB)
	if err != nil {
		return fmt.Errorf("failed to create cleaned structure: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	for _, line := range cleaned {
		fmt.Fprintln(w, line)
	}
	if !hasEnd {
		fmt.Fprintln(w, "END")
	}
	return w.Flush()
}
