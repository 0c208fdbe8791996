package docking

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/arqgene/moldock/internal/structure"
	"github.com/arqgene/moldock/pkg/log"
)

// MaxPoses is the hard cap on poses per run, matching the engine's
// --num_modes ceiling the pipeline is tuned for.
const MaxPoses = 9

// Params describes one docking run.
type Params struct {
	Receptor       string
	Ligand         string
	Output         string
	NumModes       int
	Exhaustiveness int
	Box            structure.GridBox
}

// Engine wraps the Smina command line. Affinity values are only ever read
// back from the engine's own output, never recomputed.
type Engine struct {
	bin     string
	timeout time.Duration
}

func New(bin string, timeout time.Duration) Engine {
	if bin == "" {
		bin = "smina"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return Engine{
		bin:     bin,
		timeout: timeout,
	}
}

// Run executes a docking search and returns the per-pose affinities in
// engine order, capped at MaxPoses.
func (e Engine) Run(ctx context.Context, params Params) ([]float64, error) {
	if params.NumModes <= 0 || params.NumModes > MaxPoses {
		params.NumModes = MaxPoses
	}
	if params.Exhaustiveness <= 0 {
		params.Exhaustiveness = 8
	}

	cmdPath, err := exec.LookPath(e.bin)
	if err != nil {
		return nil, fmt.Errorf("docking binary %q not found: %w", e.bin, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := e.dockArgs(params)
	log.Info("Running docking: %s %v", e.bin, args)

	cmd := exec.CommandContext(runCtx, cmdPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("docking timed out after %s", e.timeout)
		}
		return nil, fmt.Errorf("docking failed: %s", firstNonEmpty(stderr.String(), err.Error()))
	}

	affinities, err := ParseAffinities(params.Output)
	if err != nil {
		return nil, err
	}
	if len(affinities) == 0 {
		return nil, fmt.Errorf("no docking results found")
	}
	if len(affinities) > params.NumModes {
		affinities = affinities[:params.NumModes]
	}
	return affinities, nil
}

func (e Engine) dockArgs(params Params) []string {
	return []string{
		"--receptor", params.Receptor,
		"--ligand", params.Ligand,
		"--num_modes", strconv.Itoa(params.NumModes),
		"--exhaustiveness", strconv.Itoa(params.Exhaustiveness),
		"--center_x", formatCoord(params.Box.CenterX),
		"--center_y", formatCoord(params.Box.CenterY),
		"--center_z", formatCoord(params.Box.CenterZ),
		"--size_x", formatCoord(params.Box.SizeX),
		"--size_y", formatCoord(params.Box.SizeY),
		"--size_z", formatCoord(params.Box.SizeZ),
		"--out", params.Output,
		"--verbosity", "1",
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
