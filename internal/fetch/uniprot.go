package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arqgene/moldock/pkg/log"
)

// UniProt fetches protein sequences and resolves protein names to
// accessions through the UniProtKB REST API.
type UniProt struct {
	baseURL    string
	httpClient *http.Client
}

func NewUniProt(baseURL string, timeout time.Duration) *UniProt {
	if baseURL == "" {
		baseURL = "https://rest.uniprot.org/uniprotkb"
	}
	return &UniProt{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

// FetchFASTA retrieves the FASTA sequence for a UniProt accession.
func (u *UniProt) FetchFASTA(ctx context.Context, accession string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s.fasta", u.baseURL, url.PathEscape(accession))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch molecular sequence: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read sequence response: %w", err)
		}
		return string(body), nil
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("molecular sequence ID %q: %w", accession, ErrNotFound)
	default:
		return "", fmt.Errorf("sequence database error: HTTP %d", resp.StatusCode)
	}
}

type uniprotSearchResponse struct {
	Results []struct {
		PrimaryAccession   string `json:"primaryAccession"`
		ProteinDescription struct {
			RecommendedName struct {
				FullName struct {
					Value string `json:"value"`
				} `json:"fullName"`
			} `json:"recommendedName"`
		} `json:"proteinDescription"`
	} `json:"results"`
}

// SearchByName resolves a protein name to an accession and full name.
// Queries are tried from most to least specific: reviewed human entries
// first, any reviewed entry, any human entry, then an unrestricted match.
func (u *UniProt) SearchByName(ctx context.Context, proteinName string) (accession, fullName string, err error) {
	queries := []string{
		fmt.Sprintf("(protein_name:%s) AND (reviewed:true) AND (organism_id:9606)", proteinName),
		fmt.Sprintf("(protein_name:%s) AND (reviewed:true)", proteinName),
		fmt.Sprintf("(protein_name:%s) AND (organism_id:9606)", proteinName),
		fmt.Sprintf("protein_name:%s", proteinName),
	}

	for _, query := range queries {
		reqURL := fmt.Sprintf("%s/search?query=%s&format=json&size=5",
			u.baseURL, url.QueryEscape(query))

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if reqErr != nil {
			return "", "", fmt.Errorf("failed to create request: %w", reqErr)
		}

		resp, doErr := u.httpClient.Do(req)
		if doErr != nil {
			log.Warn("UniProt search failed for query %q: %v", query, doErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}

		var parsed uniprotSearchResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil || len(parsed.Results) == 0 {
			continue
		}

		entry := parsed.Results[0]
		name := entry.ProteinDescription.RecommendedName.FullName.Value
		if name == "" {
			name = proteinName
		}
		return entry.PrimaryAccession, name, nil
	}

	return "", "", fmt.Errorf("no results found for protein name %q: %w", proteinName, ErrNotFound)
}
