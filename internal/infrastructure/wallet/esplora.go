package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/btcescrow/escrowd/pkg/circuitbreaker"
	"github.com/btcescrow/escrowd/pkg/httputil"
)

// esploraClient is a thin client for the esplora HTTP API, the only chain
// backend needed: address lookups, raw transactions and broadcast.
type esploraClient struct {
	apiURL string
	cb     *gobreaker.CircuitBreaker
}

type esploraTxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

type esploraVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

type esploraTx struct {
	TxId   string          `json:"txid"`
	Vout   []esploraVout   `json:"vout"`
	Status esploraTxStatus `json:"status"`
}

type esploraUtxo struct {
	TxId   string          `json:"txid"`
	Vout   uint32          `json:"vout"`
	Value  int64           `json:"value"`
	Status esploraTxStatus `json:"status"`
}

func newEsploraClient(apiURL string) (*esploraClient, error) {
	client := &esploraClient{
		apiURL: apiURL,
		cb:     circuitbreaker.NewCircuitBreaker("esplora"),
	}
	if _, err := client.tipHeight(context.Background()); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return client, nil
}

func (e *esploraClient) tipHeight(ctx context.Context) (int64, error) {
	body, err := e.get(ctx, fmt.Sprintf("%s/blocks/tip/height", e.apiURL))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(body), 10, 64)
}

func (e *esploraClient) getTx(ctx context.Context, txHash string) (*esploraTx, error) {
	body, err := e.get(ctx, fmt.Sprintf("%s/tx/%s", e.apiURL, url.PathEscape(txHash)))
	if err != nil {
		return nil, err
	}
	var tx esploraTx
	if err := json.Unmarshal([]byte(body), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (e *esploraClient) getRawTx(ctx context.Context, txHash string) ([]byte, error) {
	body, err := e.get(ctx, fmt.Sprintf("%s/tx/%s/hex", e.apiURL, url.PathEscape(txHash)))
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimSpace(body))
}

func (e *esploraClient) getUtxos(ctx context.Context, address string) ([]esploraUtxo, error) {
	body, err := e.get(ctx, fmt.Sprintf(
		"%s/address/%s/utxo", e.apiURL, url.PathEscape(address),
	))
	if err != nil {
		return nil, err
	}
	utxos := make([]esploraUtxo, 0)
	if err := json.Unmarshal([]byte(body), &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

func (e *esploraClient) broadcast(ctx context.Context, txHex string) (string, error) {
	body, err := e.do(ctx, "POST", fmt.Sprintf("%s/tx", e.apiURL), txHex)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

func (e *esploraClient) get(ctx context.Context, url string) (string, error) {
	return e.do(ctx, "GET", url, "")
}

type esploraResponse struct {
	status int
	body   string
}

// do runs the request behind the circuit breaker. Only transport failures
// count against the breaker: a reachable esplora answering 404 for a not yet
// seen transaction is a healthy backend, not a failing one.
func (e *esploraClient) do(
	ctx context.Context, method, url, bodyToSend string,
) (string, error) {
	res, err := e.cb.Execute(func() (interface{}, error) {
		status, body, err := httputil.NewHTTPRequest(ctx, method, url, bodyToSend, nil)
		if err != nil {
			return nil, err
		}
		return esploraResponse{status, body}, nil
	})
	if err != nil {
		return "", err
	}

	response := res.(esploraResponse)
	if response.status != http.StatusOK {
		return "", fmt.Errorf("esplora: %d %s", response.status, response.body)
	}
	return response.body, nil
}
