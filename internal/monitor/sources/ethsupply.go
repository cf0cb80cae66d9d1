package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/supply"
)

const (
	DefaultSupplyAPI = "https://ultrasound.money"
	supplyPartsPath  = "/api/v2/fees/eth-supply-parts"
)

// EthSupply reads the execution and beacon supply parts from the fees API.
type EthSupply struct {
	client  *http.Client
	baseURL string
}

func NewEthSupply(baseURL string) *EthSupply {
	if baseURL == "" {
		baseURL = DefaultSupplyAPI
	}
	return &EthSupply{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *EthSupply) Name() string { return "ultrasound" }
func (s *EthSupply) URL() string  { return s.baseURL }

func (s *EthSupply) FetchSupply(ctx context.Context) (supply.WireSnapshot, error) {
	var w supply.WireSnapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+supplyPartsPath, nil)
	if err != nil {
		return w, fmt.Errorf("create supply request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return w, fmt.Errorf("supply parts API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return w, fmt.Errorf("supply parts API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return w, fmt.Errorf("decode supply parts: %w", err)
	}
	return w, nil
}
