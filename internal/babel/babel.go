package babel

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/log"
)

// Tool wraps the OpenBabel command line for the conversions the pipeline
// needs: normalization to PDBQT, hydrogen addition, SMILES to 3D, and
// conversion back to PDB for the viewer.
type Tool struct {
	bin     string
	timeout time.Duration
}

func New(bin string, timeout time.Duration) Tool {
	if bin == "" {
		bin = "obabel"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return Tool{
		bin:     bin,
		timeout: timeout,
	}
}

// ConvertToPDBQT normalizes a structure file into the docking engine's
// format. Proteins get rigid-receptor output; ligands are protonated at
// physiological pH.
func (t Tool) ConvertToPDBQT(ctx context.Context, input, output string, kind structure.Kind) error {
	if err := t.run(ctx, t.convertArgs(input, output, kind)...); err != nil {
		return fmt.Errorf("PDBQT conversion failed: %w", err)
	}
	return requireNonEmpty(output, "PDBQT conversion")
}

// AddHydrogens protonates a protein structure at the given pH.
func (t Tool) AddHydrogens(ctx context.Context, input, output string, ph float64) error {
	args := []string{input, "-O", output, "-p", strconv.FormatFloat(ph, 'f', -1, 64)}
	if err := t.run(ctx, args...); err != nil {
		return fmt.Errorf("hydrogen addition failed: %w", err)
	}
	return requireNonEmpty(output, "hydrogen addition")
}

// GenerateSDF builds a 3D SDF structure from a SMILES descriptor.
func (t Tool) GenerateSDF(ctx context.Context, smiles, output string) error {
	if err := t.run(ctx, t.gen3DArgs(smiles, output)...); err != nil {
		return fmt.Errorf("3D structure generation failed: %w", err)
	}
	return requireNonEmpty(output, "3D structure generation")
}

// ConvertToPDB converts a PDBQT complex back to plain PDB for the viewer.
func (t Tool) ConvertToPDB(ctx context.Context, input, output string) error {
	if err := t.run(ctx, input, "-O", output); err != nil {
		return fmt.Errorf("PDB conversion failed: %w", err)
	}
	return requireNonEmpty(output, "PDB conversion")
}

func (t Tool) convertArgs(input, output string, kind structure.Kind) []string {
	if kind == structure.KindProtein {
		// -xr writes a rigid receptor without torsion tree records
		return []string{input, "-O", output, "-xr"}
	}
	return []string{input, "-O", output, "-p", "7.4"}
}

func (t Tool) gen3DArgs(smiles, output string) []string {
	return []string{"-:" + smiles, "-O", output, "--gen3d", "-h"}
}

func (t Tool) run(ctx context.Context, args ...string) error {
	cmdPath, err := exec.LookPath(t.bin)
	if err != nil {
		return fmt.Errorf("converter binary %q not found: %w", t.bin, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cmdPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("conversion timed out after %s", t.timeout)
		}
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		log.Error("OpenBabel failed (%v): %s", err, msg)
		return fmt.Errorf("%s", firstNonEmpty(msg, err.Error()))
	}
	return nil
}

func requireNonEmpty(path, stage string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%s produced empty file, please check input format", stage)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
