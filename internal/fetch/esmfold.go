package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// ESMFold's public endpoint rejects long sequences; the backing model
	// degrades well before that anyway.
	maxSequenceLength = 400
	minSequenceLength = 10

	// A structurally plausible PDB response is never this small.
	minStructureBytes = 100
)

// ESMFold predicts a structure from sequence through the ESM Atlas fold
// endpoint when no pre-computed model exists.
type ESMFold struct {
	apiURL     string
	httpClient *http.Client
}

func NewESMFold(apiURL string, timeout time.Duration) *ESMFold {
	if apiURL == "" {
		apiURL = "https://api.esmatlas.com/foldSequence/v1/pdb/"
	}
	return &ESMFold{
		apiURL:     apiURL,
		httpClient: newHTTPClient(timeout),
	}
}

// Predict folds a FASTA sequence and writes the predicted PDB structure to
// outputPath. The FASTA header and line breaks are stripped before the
// request; the endpoint expects the raw residue string.
func (e *ESMFold) Predict(ctx context.Context, fasta, outputPath string) error {
	sequence := cleanSequence(fasta)

	if len(sequence) > maxSequenceLength {
		return fmt.Errorf("sequence too long (%d residues), maximum %d amino acids supported",
			len(sequence), maxSequenceLength)
	}
	if len(sequence) < minSequenceLength {
		return fmt.Errorf("sequence too short, minimum %d amino acids required", minSequenceLength)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, strings.NewReader(sequence))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to predict structure: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read prediction response: %w", err)
		}
		if len(body) < minStructureBytes {
			return fmt.Errorf("prediction service returned invalid structure data")
		}
		if err := os.WriteFile(outputPath, body, 0o644); err != nil {
			return fmt.Errorf("failed to write predicted structure: %w", err)
		}
		return nil
	case http.StatusBadRequest:
		return fmt.Errorf("invalid sequence format")
	case http.StatusServiceUnavailable:
		return fmt.Errorf("structure prediction service temporarily unavailable, please try again")
	default:
		return fmt.Errorf("structural database error: HTTP %d", resp.StatusCode)
	}
}

// cleanSequence strips FASTA headers and whitespace, leaving the raw
// residue string.
func cleanSequence(fasta string) string {
	var b strings.Builder
	for _, line := range strings.Split(fasta, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		b.WriteString(line)
	}
	return strings.Join(strings.Fields(b.String()), "")
}
