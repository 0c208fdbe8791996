package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// atomLine renders a column-aligned ATOM record with charge and atom type
// in the PDBQT positions.
func atomLine(serial int, name, resName, chain string, resSeq int, x, y, z, charge float64, atomType string) string {
	return fmt.Sprintf("ATOM  %5d %-4s %3s %1s%4d    %8.3f%8.3f%8.3f%6.2f%6.2f    %6.3f %-2s",
		serial, name, resName, chain, resSeq, x, y, z, 1.00, 0.00, charge, atomType)
}

func writeFixture(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestVerifyPDBQT_ValidLigand(t *testing.T) {
	path := writeFixture(t, "ligand.pdbqt",
		"ROOT",
		atomLine(1, "C1", "LIG", "", 1, 1.0, 2.0, 3.0, 0.12, "C"),
		atomLine(2, "N1", "LIG", "", 1, 2.0, 3.0, 4.0, -0.35, "N"),
		atomLine(3, "O1", "LIG", "", 1, 3.0, 4.0, 5.0, -0.40, "OA"),
		atomLine(4, "C2", "LIG", "", 1, 4.0, 5.0, 6.0, 0.05, "C"),
		atomLine(5, "C3", "LIG", "", 1, 5.0, 6.0, 7.0, 0.02, "C"),
		"ENDROOT",
		"TORSDOF 0",
	)

	report := VerifyPDBQT(path, KindLigand)
	require.True(t, report.Valid)
	assert.Empty(t, report.Error)
	assert.Equal(t, 5, report.Statistics.AtomCount)
	assert.True(t, report.Statistics.HasCoordinates)
	assert.True(t, report.Statistics.HasPartialCharges)
	assert.True(t, report.Statistics.HasAtomTypes)
	assert.True(t, report.Statistics.HasRoot)
	assert.Empty(t, report.Warnings)
}

func TestVerifyPDBQT_LigandWithoutRootWarns(t *testing.T) {
	path := writeFixture(t, "ligand.pdbqt",
		atomLine(1, "C1", "LIG", "", 1, 1.0, 2.0, 3.0, 0.12, "C"),
	)

	report := VerifyPDBQT(path, KindLigand)
	require.True(t, report.Valid)
	assert.Contains(t, strings.Join(report.Warnings, ";"), "ROOT")
	assert.Contains(t, strings.Join(report.Warnings, ";"), "very small ligand")
}

func TestVerifyPDBQT_NoAtomsIsFatal(t *testing.T) {
	path := writeFixture(t, "empty.pdbqt", "REMARK nothing here")

	report := VerifyPDBQT(path, KindLigand)
	require.False(t, report.Valid)
	assert.Equal(t, "no atoms found in PDBQT file", report.Error)
}

func TestVerifyPDBQT_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.pdbqt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	report := VerifyPDBQT(path, KindProtein)
	require.False(t, report.Valid)
	assert.Equal(t, "file is empty", report.Error)
}

func TestVerifyPDBQT_MissingFile(t *testing.T) {
	report := VerifyPDBQT(filepath.Join(t.TempDir(), "missing.pdbqt"), KindProtein)
	require.False(t, report.Valid)
	assert.Equal(t, "file not found", report.Error)
}

func TestVerifyPDB_Statistics(t *testing.T) {
	path := writeFixture(t, "protein.pdb",
		"HEADER    TEST PROTEIN",
		atomLine(1, "N", "ALA", "A", 1, 1.0, 1.0, 1.0, 0, ""),
		atomLine(2, "CA", "ALA", "A", 1, 2.0, 1.0, 1.0, 0, ""),
		atomLine(3, "N", "GLY", "B", 2, 3.0, 1.0, 1.0, 0, ""),
		"END",
	)

	report := VerifyPDB(path)
	require.True(t, report.Valid)
	assert.Equal(t, 3, report.Statistics.AtomCount)
	assert.Equal(t, 2, report.Statistics.ChainCount)
	assert.Equal(t, []string{"A", "B"}, report.Statistics.Chains)
	assert.Equal(t, 2, report.Statistics.ResidueCount)
	assert.True(t, report.Statistics.HasCoordinates)
	assert.Contains(t, strings.Join(report.Warnings, ";"), "very few atoms")
}

func TestEstimateMolecularWeight(t *testing.T) {
	path := writeFixture(t, "ligand.pdbqt",
		atomLine(1, "C1", "LIG", "", 1, 1, 1, 1, 0.1, "C"),
		atomLine(2, "N1", "LIG", "", 1, 2, 1, 1, -0.3, "N"),
		atomLine(3, "O1", "LIG", "", 1, 3, 1, 1, -0.4, "OA"),
		atomLine(4, "H1", "LIG", "", 1, 4, 1, 1, 0.2, "HD"),
	)

	weight, err := EstimateMolecularWeight(path)
	require.NoError(t, err)
	// C + N + O (from OA) + H (from HD)
	assert.InDelta(t, 12.011+14.007+15.999+1.008, weight, 0.001)
}
