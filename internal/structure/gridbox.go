package structure

import (
	"bufio"
	"fmt"
	"os"
)

// DeriveGridBox computes a blind-docking search box covering the whole
// receptor: the axis-aligned bounding box of all atom coordinates, grown
// by padding angstroms on every side.
func DeriveGridBox(receptorFile string, padding float64) (GridBox, error) {
	f, err := os.Open(receptorFile)
	if err != nil {
		return GridBox{}, fmt.Errorf("failed to open receptor: %w", err)
	}
	defer f.Close()

	var (
		minX, minY, minZ float64
		maxX, maxY, maxZ float64
		found            bool
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !isAtomRecord(line) {
			continue
		}
		x, y, z, ok := parseCoords(line)
		if !ok {
			continue
		}
		if !found {
			minX, maxX = x, x
			minY, maxY = y, y
			minZ, maxZ = z, z
			found = true
			continue
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
		minZ, maxZ = min(minZ, z), max(maxZ, z)
	}
	if err := scanner.Err(); err != nil {
		return GridBox{}, fmt.Errorf("failed to read receptor: %w", err)
	}
	if !found {
		return GridBox{}, fmt.Errorf("no atom coordinates found in receptor")
	}

	return GridBox{
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
		CenterZ: (minZ + maxZ) / 2,
		SizeX:   (maxX - minX) + 2*padding,
		SizeY:   (maxY - minY) + 2*padding,
		SizeZ:   (maxZ - minZ) + 2*padding,
	}, nil
}
