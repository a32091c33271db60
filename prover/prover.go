// Package prover is the client side of a remote proving service. It
// submits circuit inputs, packs returned groth16 proofs into EVM
// calldata, and can verify a returned proof locally.
package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMalformedProof means the prover's response does not carry a
// well-formed groth16 proof.
var ErrMalformedProof = errors.New("malformed proof")

// ProofJSON is the snarkjs-shaped groth16 proof returned by the
// proving service.
type ProofJSON struct {
	PiA []string   `json:"pi_a"`
	PiB [][]string `json:"pi_b"`
	PiC []string   `json:"pi_c"`
}

// ProveResponse is the proving service's answer to a prove call.
type ProveResponse struct {
	Proof      ProofJSON `json:"proof"`
	PubSignals []string  `json:"pub_signals"`
}

// GPUProveRequest addresses a single proving job on the GPU service.
type GPUProveRequest struct {
	BlueprintID           string          `json:"blueprintId"`
	ProofID               string          `json:"proofId"`
	ZkeyDownloadURL       string          `json:"zkeyDownloadUrl"`
	CircuitCppDownloadURL string          `json:"circuitCppDownloadUrl"`
	Input                 json.RawMessage `json:"input"`
}

// Client talks to one proving service instance.
type Client struct {
	// BaseURL is the service root, without a trailing slash.
	BaseURL string
	// APIKey is sent as x-api-key on GPU prove calls.
	APIKey string
	// HTTPClient defaults to http.DefaultClient. Proving runs for
	// minutes, so cancellation is the caller's context.
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Prove submits input to POST {base}/prove/{request} and returns the
// proof as EVM calldata along with the decimal public signals.
func (c *Client) Prove(ctx context.Context, request string, input json.RawMessage) ([]byte, []*big.Int, error) {
	body, err := json.Marshal(map[string]json.RawMessage{"input": input})
	if err != nil {
		return nil, nil, fmt.Errorf("encode prove request: %w", err)
	}
	return c.do(ctx, c.BaseURL+"/prove/"+request, body, "")
}

// ProveGPU submits a job to the GPU proving service, authenticated via
// the client's API key.
func (c *Client) ProveGPU(ctx context.Context, req GPUProveRequest) ([]byte, []*big.Int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encode gpu prove request: %w", err)
	}
	return c.do(ctx, c.BaseURL, body, c.APIKey)
}

func (c *Client) do(ctx context.Context, url string, body []byte, apiKey string) ([]byte, []*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build prove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("prove request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, nil, fmt.Errorf("prover returned %s: %s", res.Status, strings.TrimSpace(string(msg)))
	}

	var out ProveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decode prove response: %w", err)
	}

	proof, err := out.Proof.ToEthBytes()
	if err != nil {
		return nil, nil, err
	}
	signals := make([]*big.Int, len(out.PubSignals))
	for i, s := range out.PubSignals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, nil, fmt.Errorf("%w: public signal %d (%q) is not decimal", ErrMalformedProof, i, s)
		}
		signals[i] = v
	}
	return proof, signals, nil
}

var (
	abiUint2   = mustABIType("uint256[2]")
	abiUint2x2 = mustABIType("uint256[2][2]")
)

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", name, err))
	}
	return t
}

// ToEthBytes packs the proof as the (a, b, c) tuple the on-chain
// verifier takes. The inner coordinates of pi_b are swapped: snarkjs
// emits G2 points in the opposite limb order from the EVM precompile.
func (p *ProofJSON) ToEthBytes() ([]byte, error) {
	if len(p.PiA) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 || len(p.PiC) < 2 {
		return nil, fmt.Errorf("%w: proof components truncated", ErrMalformedProof)
	}
	dec := func(s string) (*big.Int, error) {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a decimal coordinate", ErrMalformedProof, s)
		}
		return v, nil
	}

	var a [2]*big.Int
	var b [2][2]*big.Int
	var c [2]*big.Int
	var err error
	for i := 0; i < 2; i++ {
		if a[i], err = dec(p.PiA[i]); err != nil {
			return nil, err
		}
		if c[i], err = dec(p.PiC[i]); err != nil {
			return nil, err
		}
		if b[i][0], err = dec(p.PiB[i][1]); err != nil {
			return nil, err
		}
		if b[i][1], err = dec(p.PiB[i][0]); err != nil {
			return nil, err
		}
	}

	args := abi.Arguments{{Type: abiUint2}, {Type: abiUint2x2}, {Type: abiUint2}}
	encoded, err := args.Pack(a, b, c)
	if err != nil {
		return nil, fmt.Errorf("abi encode proof: %w", err)
	}
	return encoded, nil
}
