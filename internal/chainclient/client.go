// Пакет chainclient — JSON-RPC клиент EVM-узла.
// Используется для проверки баланса кошелька и подтверждения
// платёжных транзакций: eth_getBalance, eth_getTransactionByHash,
// eth_getTransactionReceipt.
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultPollInterval — интервал опроса квитанции по умолчанию.
const DefaultPollInterval = 2 * time.Second

// maxResponseSize — ограничение размера ответа узла.
const maxResponseSize = 4 << 20

// ErrTxNotFound — узел не знает транзакцию с таким хэшем.
var ErrTxNotFound = errors.New("транзакция не найдена")

// RPCRequest — JSON-RPC 2.0 запрос.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int64  `json:"id"`
}

// RPCResponse — JSON-RPC 2.0 ответ.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError — ошибка, возвращённая узлом.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Transaction — поля eth_getTransactionByHash, нужные для проверки оплаты.
type Transaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	BlockNumber *string `json:"blockNumber"`
}

// ValueWei возвращает сумму перевода в wei.
func (t *Transaction) ValueWei() (*big.Int, error) {
	return ParseHexBig(t.Value)
}

// Receipt — квитанция транзакции (eth_getTransactionReceipt).
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	From            string `json:"from"`
	To              string `json:"to"`
	// Status — "0x1" успех, "0x0" откат
	Status  string `json:"status"`
	GasUsed string `json:"gasUsed"`
}

// Succeeded — транзакция исполнена без отката.
func (r *Receipt) Succeeded() bool {
	return strings.EqualFold(r.Status, "0x1")
}

// Client — JSON-RPC клиент EVM-узла.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
	logger     *slog.Logger
}

// New создаёт клиент. timeout ограничивает один HTTP-запрос к узлу.
func New(rpcURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "chain_client")),
	}
}

// Call выполняет JSON-RPC вызов и возвращает сырое поле result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: чтение ответа: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: узел вернул HTTP %d", method, resp.StatusCode)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("%s: разбор ответа: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// GetBalance возвращает баланс адреса в wei на последнем блоке.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_getBalance", with0x(address), "latest")
	if err != nil {
		return nil, err
	}
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return ParseHexBig(hex)
}

// GetTransaction возвращает транзакцию по хэшу.
// Неизвестный хэш — ErrTxNotFound.
func (c *Client) GetTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	result, err := c.Call(ctx, "eth_getTransactionByHash", txHash)
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, ErrTxNotFound
	}
	var tx Transaction
	if err := json.Unmarshal(result, &tx); err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash: %w", err)
	}
	return &tx, nil
}

// GetReceipt возвращает квитанцию транзакции.
// Для ещё не включённой в блок транзакции возвращает nil без ошибки.
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt: %w", err)
	}
	return &receipt, nil
}

// WaitForReceipt опрашивает узел, пока транзакция не будет включена в блок
// или не завершится ctx. Ошибка RPC прерывает ожидание сразу.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	receipt, err := c.GetReceipt(ctx, txHash)
	if err != nil || receipt != nil {
		return receipt, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.GetReceipt(ctx, txHash)
			if err != nil {
				return nil, err
			}
			if receipt != nil {
				c.logger.Debug("Транзакция включена в блок",
					slog.String("tx_hash", txHash),
					slog.String("block", receipt.BlockNumber),
					slog.String("status", receipt.Status),
				)
				return receipt, nil
			}
		}
	}
}

// ParseHexBig разбирает 0x-шестнадцатеричное число.
func ParseHexBig(s string) (*big.Int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return nil, fmt.Errorf("пустое шестнадцатеричное число %q", s)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("некорректное шестнадцатеричное число %q", s)
	}
	return n, nil
}

// FormatHexBig форматирует число как 0x-шестнадцатеричное.
func FormatHexBig(n *big.Int) string {
	return "0x" + n.Text(16)
}

func with0x(address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return address
	}
	return "0x" + address
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
