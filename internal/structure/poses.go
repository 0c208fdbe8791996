package structure

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SplitPoses writes each MODEL/ENDMDL block of a multi-pose PDBQT file to
// its own pose_<n>.pdbqt file under outputDir, in engine order.
func SplitPoses(multiPoseFile, outputDir string) ([]string, error) {
	in, err := os.Open(multiPoseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose file: %w", err)
	}
	defer in.Close()

	var (
		poses       []string
		currentPose []string
		poseNum     = 1
	)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MODEL"):
			currentPose = []string{line}
		case strings.HasPrefix(line, "ENDMDL"):
			currentPose = append(currentPose, line)
			poseFile := filepath.Join(outputDir, fmt.Sprintf("pose_%d.pdbqt", poseNum))
			if err := writeLines(poseFile, currentPose); err != nil {
				return poses, err
			}
			poses = append(poses, poseFile)
			poseNum++
			currentPose = nil
		default:
			if currentPose != nil {
				currentPose = append(currentPose, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return poses, fmt.Errorf("failed to read pose file: %w", err)
	}

	return poses, nil
}

// CombineComplex assembles a protein+pose complex file for the viewer:
// protein records without END, a TER separator, then the pose without its
// MODEL framing, closed by a single END.
func CombineComplex(proteinFile, ligandFile, outputFile string) error {
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create complex file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)

	if err := copyFiltered(proteinFile, w, func(line string) bool {
		return !strings.HasPrefix(line, "END")
	}); err != nil {
		return err
	}

	fmt.Fprintln(w, "TER")

	if err := copyFiltered(ligandFile, w, func(line string) bool {
		return !strings.HasPrefix(line, "MODEL") &&
			!strings.HasPrefix(line, "ENDMDL") &&
			!strings.HasPrefix(line, "END")
	}); err != nil {
		return err
	}

	fmt.Fprintln(w, "END")
	return w.Flush()
}

func copyFiltered(path string, w *bufio.Writer, keep func(string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if keep(line) {
			fmt.Fprintln(w, line)
		}
	}
	return scanner.Err()
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}
