package docking

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseAffinities extracts per-pose binding affinities from the engine's
// multi-pose output. Smina writes one "minimizedAffinity" REMARK per pose;
// Vina-compatible output carries "VINA RESULT:" lines instead. At most
// MaxPoses values are returned.
func ParseAffinities(outputFile string) ([]float64, error) {
	f, err := os.Open(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open docking output: %w", err)
	}
	defer f.Close()

	var affinities []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.Contains(line, "minimizedAffinity"):
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if val, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
				affinities = append(affinities, val)
			}
		case strings.Contains(line, "VINA RESULT:"):
			fields := strings.Fields(line)
			if len(fields) < 4 {
				continue
			}
			if val, err := strconv.ParseFloat(fields[3], 64); err == nil {
				affinities = append(affinities, val)
			}
		}

		if len(affinities) == MaxPoses {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read docking output: %w", err)
	}

	return affinities, nil
}
