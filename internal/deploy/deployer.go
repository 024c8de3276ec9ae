// Package deploy - Contract Deployment
// Deploys compiled bytecode through a JSON-RPC node (a local dev chain
// or a hosted endpoint with unlocked accounts), with bounded retries
// on transient transport failures.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dappforge/internal/logging"
)

const (
	maxRPCAttempts = 3
	receiptPolls   = 30
	pollInterval   = 2 * time.Second
)

// Deployment is the result of one successful deployment.
type Deployment struct {
	ContractAddress string `json:"contract_address"`
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number"`
	From            string `json:"from"`
	ChainID         string `json:"chain_id"`
}

// Deployer deploys bytecode via JSON-RPC.
type Deployer struct {
	rpcURL string
	client *http.Client
	// sleep is swappable for deterministic backoff tests.
	sleep func(time.Duration)
}

func NewDeployer(rpcURL string) *Deployer {
	return &Deployer{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: 30 * time.Second},
		sleep:  time.Sleep,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type receipt struct {
	ContractAddress string `json:"contractAddress"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

// Deploy sends the bytecode as a contract-creation transaction from the
// node's first unlocked account and waits for the mined receipt.
func (d *Deployer) Deploy(ctx context.Context, bytecode string) (*Deployment, error) {
	if !strings.HasPrefix(bytecode, "0x") || len(bytecode) <= 2 {
		return nil, fmt.Errorf("deploy requires 0x-prefixed bytecode")
	}

	var chainID string
	if err := d.call(ctx, "eth_chainId", nil, &chainID); err != nil {
		return nil, fmt.Errorf("chain unreachable: %w", err)
	}

	var accounts []string
	if err := d.call(ctx, "eth_accounts", nil, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("node has no unlocked accounts to deploy from")
	}
	from := accounts[0]

	var txHash string
	params := []interface{}{map[string]string{
		"from": from,
		"data": bytecode,
		"gas":  "0x7a1200",
	}}
	if err := d.call(ctx, "eth_sendTransaction", params, &txHash); err != nil {
		return nil, fmt.Errorf("deployment transaction rejected: %w", err)
	}

	logging.L().Info("deployment transaction sent",
		zap.String("tx", txHash),
		zap.String("from", from))

	rcpt, err := d.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if rcpt.Status == "0x0" {
		return nil, fmt.Errorf("deployment transaction %s reverted", txHash)
	}

	return &Deployment{
		ContractAddress: rcpt.ContractAddress,
		TransactionHash: txHash,
		BlockNumber:     parseHexUint(rcpt.BlockNumber),
		From:            from,
		ChainID:         chainID,
	}, nil
}

func (d *Deployer) waitForReceipt(ctx context.Context, txHash string) (*receipt, error) {
	for i := 0; i < receiptPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var rcpt *receipt
		if err := d.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &rcpt); err != nil {
			return nil, err
		}
		if rcpt != nil && rcpt.BlockNumber != "" {
			return rcpt, nil
		}
		d.sleep(pollInterval)
	}
	return nil, fmt.Errorf("transaction %s not mined after %s", txHash, time.Duration(receiptPolls)*pollInterval)
}

// call performs one JSON-RPC method with bounded retry and exponential
// backoff on transport failures. RPC-level errors are not retried.
func (d *Deployer) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < maxRPCAttempts; attempt++ {
		if attempt > 0 {
			d.sleep(backoff)
			backoff *= 2
		}

		body, err := d.post(ctx, payload)
		if err != nil {
			lastErr = err
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			lastErr = fmt.Errorf("malformed rpc response: %w", err)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, maxRPCAttempts, lastErr)
}

func (d *Deployer) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func parseHexUint(s string) uint64 {
	var v uint64
	_, _ = fmt.Sscanf(s, "0x%x", &v)
	return v
}
