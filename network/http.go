package network

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mnslabs/mns-backend/interfaces"
)

// NodeClient talks to a chain node and its indexer over HTTP.
type NodeClient struct {
	// BaseURL is the node endpoint, e.g. https://rpc.testnet.miden.io.
	BaseURL string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client
}

// NewNodeClient creates a client for the given node endpoint.
func NewNodeClient(baseURL string) *NodeClient {
	return &NodeClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type txPayload struct {
	ID                string   `json:"id"`
	Account           string   `json:"account"`
	Creates           bool     `json:"creates,omitempty"`
	InitialNonce      uint64   `json:"initial_nonce"`
	FinalNonce        uint64   `json:"final_nonce"`
	ProgramHash       string   `json:"program_hash"`
	InitialCommitment string   `json:"initial_commitment"`
	FinalCommitment   string   `json:"final_commitment"`
	PublicOutputs     []uint64 `json:"public_outputs"`
	Proof             string   `json:"proof"`
}

type txStatusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type accountPayload struct {
	Address    string `json:"address"`
	Nonce      uint64 `json:"nonce"`
	Commitment string `json:"commitment"`
	Registry   bool   `json:"registry"`
}

// SubmitTransaction posts the transaction to the node. Connectivity failures
// and 5xx responses are transient; any 4xx response is a terminal rejection.
func (c *NodeClient) SubmitTransaction(ctx context.Context, tx Transaction) error {
	outputs := make([]uint64, len(tx.PublicOutputs))
	for i, f := range tx.PublicOutputs {
		outputs[i] = f.Uint64()
	}
	payload := txPayload{
		ID:                string(tx.ID),
		Account:           tx.Account.String(),
		Creates:           tx.Creates,
		InitialNonce:      tx.InitialNonce,
		FinalNonce:        tx.FinalNonce,
		ProgramHash:       hex.EncodeToString(tx.ProgramHash[:]),
		InitialCommitment: hex.EncodeToString(tx.InitialCommitment[:]),
		FinalCommitment:   hex.EncodeToString(tx.FinalCommitment[:]),
		PublicOutputs:     outputs,
		Proof:             hex.EncodeToString(tx.Proof),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &interfaces.SubmissionError{Err: fmt.Errorf("encoding transaction: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return &interfaces.SubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &interfaces.SubmissionError{Transient: true, Err: fmt.Errorf("could not reach node: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return &interfaces.SubmissionError{Transient: true, Err: fmt.Errorf("node returned %d", resp.StatusCode)}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &interfaces.SubmissionError{Err: fmt.Errorf("node rejected transaction: %d: %s", resp.StatusCode, msg)}
	}
}

// TransactionStatus queries the indexer for a submitted transaction.
func (c *NodeClient) TransactionStatus(ctx context.Context, id interfaces.TransactionID) (interfaces.TxStatus, error) {
	var payload txStatusPayload
	err := c.getJSON(ctx, fmt.Sprintf("%s/v1/transactions/%s", c.BaseURL, id), &payload)
	if err != nil {
		if err == errNotFound {
			// Not indexed yet; still pending from the caller's perspective.
			return interfaces.TxPending, nil
		}
		return interfaces.TxPending, err
	}

	switch payload.Status {
	case "pending":
		return interfaces.TxPending, nil
	case "indexing":
		return interfaces.TxIndexing, nil
	case "confirmed":
		return interfaces.TxConfirmed, nil
	case "failed":
		return interfaces.TxFailed, nil
	default:
		return interfaces.TxPending, fmt.Errorf("indexer returned unknown status %q", payload.Status)
	}
}

// AccountInfo fetches the node's view of an account.
func (c *NodeClient) AccountInfo(ctx context.Context, addr interfaces.ContractAddress) (AccountInfo, error) {
	var payload accountPayload
	err := c.getJSON(ctx, fmt.Sprintf("%s/v1/accounts/%s", c.BaseURL, addr), &payload)
	if err != nil {
		if err == errNotFound {
			return AccountInfo{}, ErrAccountNotFound
		}
		return AccountInfo{}, err
	}
	return payload.toInfo()
}

// RegistryAccount asks the node for the indexed registry contract instance.
func (c *NodeClient) RegistryAccount(ctx context.Context) (interfaces.ContractAddress, error) {
	var payload accountPayload
	err := c.getJSON(ctx, c.BaseURL+"/v1/registry", &payload)
	if err != nil {
		if err == errNotFound {
			return interfaces.ContractAddress{}, ErrAccountNotFound
		}
		return interfaces.ContractAddress{}, err
	}
	info, err := payload.toInfo()
	if err != nil {
		return interfaces.ContractAddress{}, err
	}
	return info.Address, nil
}

var errNotFound = fmt.Errorf("not found")

func (c *NodeClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not reach node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %d for %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse node response: %w", err)
	}
	return nil
}

func (c *NodeClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (p accountPayload) toInfo() (AccountInfo, error) {
	addr, err := interfaces.NewContractAddressFromHex(p.Address)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("node returned malformed account address: %w", err)
	}
	commitment, err := hex.DecodeString(p.Commitment)
	if err != nil || len(commitment) != 32 {
		return AccountInfo{}, fmt.Errorf("node returned malformed account commitment %q", p.Commitment)
	}
	info := AccountInfo{Address: addr, Nonce: p.Nonce, Registry: p.Registry}
	copy(info.Commitment[:], commitment)
	return info, nil
}

// compile-time interface check
var _ Client = (*NodeClient)(nil)
