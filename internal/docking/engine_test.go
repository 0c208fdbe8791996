package docking

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arqgene/moldock/internal/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "all_poses.pdbqt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestParseAffinities_Smina(t *testing.T) {
	path := writeOutput(t,
		"MODEL 1",
		"REMARK minimizedAffinity -7.52",
		"ENDMDL",
		"MODEL 2",
		"REMARK minimizedAffinity -6.91",
		"ENDMDL",
	)

	affinities, err := ParseAffinities(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-7.52, -6.91}, affinities)
}

func TestParseAffinities_VinaFormat(t *testing.T) {
	path := writeOutput(t,
		"MODEL 1",
		"REMARK VINA RESULT:    -8.3   0.000   0.000",
		"ENDMDL",
	)

	affinities, err := ParseAffinities(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-8.3}, affinities)
}

func TestParseAffinities_CapsAtMaxPoses(t *testing.T) {
	lines := make([]string, 0, 12)
	for range 12 {
		lines = append(lines, "REMARK minimizedAffinity -5.0")
	}
	path := writeOutput(t, lines...)

	affinities, err := ParseAffinities(path)
	require.NoError(t, err)
	assert.Len(t, affinities, MaxPoses)
}

func TestParseAffinities_SkipsMalformedLines(t *testing.T) {
	path := writeOutput(t,
		"REMARK minimizedAffinity not-a-number",
		"REMARK minimizedAffinity -4.2",
	)

	affinities, err := ParseAffinities(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{-4.2}, affinities)
}

func TestDockArgs(t *testing.T) {
	e := New("smina", 5*time.Minute)
	args := e.dockArgs(Params{
		Receptor:       "protein.pdbqt",
		Ligand:         "ligand.pdbqt",
		Output:         "all_poses.pdbqt",
		NumModes:       9,
		Exhaustiveness: 8,
		Box: structure.GridBox{
			CenterX: 1.5, CenterY: -2, CenterZ: 0,
			SizeX: 25, SizeY: 25, SizeZ: 25,
		},
	})

	assert.Equal(t, []string{
		"--receptor", "protein.pdbqt",
		"--ligand", "ligand.pdbqt",
		"--num_modes", "9",
		"--exhaustiveness", "8",
		"--center_x", "1.500",
		"--center_y", "-2.000",
		"--center_z", "0.000",
		"--size_x", "25.000",
		"--size_y", "25.000",
		"--size_z", "25.000",
		"--out", "all_poses.pdbqt",
		"--verbosity", "1",
	}, args)
}

func TestNew_Defaults(t *testing.T) {
	e := New("", 0)
	assert.Equal(t, "smina", e.bin)
	assert.Equal(t, 300*time.Second, e.timeout)
}
