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

// AlphaFold downloads pre-computed predicted structures from the AlphaFold
// Protein Structure Database file server.
type AlphaFold struct {
	baseURL    string
	httpClient *http.Client
}

func NewAlphaFold(baseURL string, timeout time.Duration) *AlphaFold {
	if baseURL == "" {
		baseURL = "https://alphafold.ebi.ac.uk/files"
	}
	return &AlphaFold{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

// FetchStructure downloads the v4 model for a UniProt accession to
// outputPath. A missing model is reported as ErrNotFound so the caller
// can fall back to on-demand prediction.
func (a *AlphaFold) FetchStructure(ctx context.Context, accession, outputPath string) error {
	reqURL := fmt.Sprintf("%s/AF-%s-F1-model_v4.pdb", a.baseURL, accession)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download structure: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		out, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create structure file: %w", err)
		}
		defer out.Close()
		if _, err := io.Copy(out, resp.Body); err != nil {
			return fmt.Errorf("failed to write structure file: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("no pre-computed structure available for %s: %w", accession, ErrNotFound)
	default:
		return fmt.Errorf("structural database error: HTTP %d", resp.StatusCode)
	}
}
