package utxo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// defaultTimeout is the default HTTP request timeout.
const defaultTimeout = 30 * time.Second

// statusResponse is the subset of the Blockbook /api/v2 status we read.
type statusResponse struct {
	Blockbook struct {
		Coin       string `json:"coin"`
		BestHeight uint64 `json:"bestHeight"`
		InSync     bool   `json:"inSync"`
	} `json:"blockbook"`
	Backend struct {
		Chain  string `json:"chain"`
		Blocks uint64 `json:"blocks"`
	} `json:"backend"`
}

// BlockbookResolver validates UTXO networks against a Blockbook endpoint.
type BlockbookResolver struct {
	httpClient *http.Client
}

// NewBlockbookResolver creates a resolver. A nil client uses a default with a 30s timeout.
func NewBlockbookResolver(httpClient *http.Client) *BlockbookResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &BlockbookResolver{httpClient: httpClient}
}

// ResolveNetwork fetches the Blockbook status and checks that the backend
// chain agrees with the network's testnet flag.
func (r *BlockbookResolver) ResolveNetwork(ctx context.Context, n chain.Network) (*chain.ResolvedNetwork, error) {
	if n.Family() != chain.FamilyUTXO {
		return nil, fmt.Errorf("%w: %s is not a UTXO network", sigilerr.ErrNetworkValidation, n)
	}

	url := strings.TrimRight(n.URL, "/") + "/api/v2"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, chain.WrapRetryable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, chain.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, chain.WrapRetryable(fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d from %s", sigilerr.ErrNetworkValidation, resp.StatusCode, n.URL)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decoding status: %w", sigilerr.ErrNetworkValidation, err)
	}

	testnet := status.Backend.Chain != "" && status.Backend.Chain != "main"
	if testnet != n.IsTestnet {
		return nil, fmt.Errorf("%w: endpoint reports chain %q for %s", sigilerr.ErrNetworkValidation, status.Backend.Chain, n)
	}

	return &chain.ResolvedNetwork{
		Network: n,
		ChainConfig: chain.ChainConfig{
			ChainID:     n.ChainID,
			Coin:        status.Blockbook.Coin,
			Chain:       status.Backend.Chain,
			Testnet:     testnet,
			BlockHeight: status.Blockbook.BestHeight,
		},
	}, nil
}
