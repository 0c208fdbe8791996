package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compound is a resolved chemical compound.
type Compound struct {
	Name   string
	SMILES string
	CID    string
}

// PubChem resolves compound names to canonical SMILES strings through the
// PubChem PUG REST API.
type PubChem struct {
	baseURL    string
	httpClient *http.Client
}

func NewPubChem(baseURL string, timeout time.Duration) *PubChem {
	if baseURL == "" {
		baseURL = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	}
	return &PubChem{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

// FetchCompound looks up a compound by name and returns its canonical
// SMILES and PubChem CID. The CID lookup is best effort; a compound with
// a SMILES but no resolvable CID is still returned.
func (p *PubChem) FetchCompound(ctx context.Context, name string) (*Compound, error) {
	smiles, err := p.fetchText(ctx, fmt.Sprintf("%s/compound/name/%s/property/CanonicalSMILES/TXT",
		p.baseURL, url.PathEscape(name)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("compound %q not found in chemical database: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch compound %q: %w", name, err)
	}

	compound := &Compound{Name: name, SMILES: smiles}

	cid, err := p.fetchText(ctx, fmt.Sprintf("%s/compound/name/%s/cids/TXT",
		p.baseURL, url.PathEscape(name)))
	if err == nil {
		compound.CID = cid
	}

	return compound, nil
}

// fetchText performs a GET and returns the first line of the body, which is
// how PUG REST TXT endpoints report single values.
func (p *PubChem) fetchText(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
		if line == "" {
			return "", fmt.Errorf("empty response: %w", ErrNotFound)
		}
		return strings.TrimSpace(line), nil
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}
