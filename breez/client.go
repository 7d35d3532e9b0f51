package breez

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// RPCConnector dials a spark node daemon over JSON-RPC.
type RPCConnector struct {
	BaseURL string
	// EventsURL overrides the derived websocket endpoint when set.
	EventsURL string
	HTTP      *http.Client
	Logger    *slog.Logger
}

// Connect opens a node session. The daemon validates the API key and seed;
// the returned SDK is bound to that session until Disconnect.
func (c *RPCConnector) Connect(ctx context.Context, req ConnectRequest) (SDK, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("breez: node base url required")
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := &rpcClient{
		baseURL:   base,
		eventsURL: strings.TrimSpace(c.EventsURL),
		apiKey:    req.APIKey,
		http:      httpClient,
		log:       logger,
	}
	params := map[string]interface{}{
		"network":    string(req.Network),
		"storageDir": req.StorageDir,
		"seed": map[string]interface{}{
			"type":       "mnemonic",
			"mnemonic":   req.Mnemonic,
			"passphrase": req.Passphrase,
		},
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := client.call(ctx, "connect", params, &result); err != nil {
		return nil, err
	}
	client.sessionID = result.SessionID
	return client, nil
}

// rpcClient is one live node session speaking JSON-RPC plus a websocket
// event stream.
type rpcClient struct {
	baseURL   string
	eventsURL string
	apiKey    string
	sessionID string
	http      *http.Client
	log       *slog.Logger
	nextID    atomic.Int64
	closed    atomic.Bool
}

func (c *rpcClient) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.call(ctx, "get_info", map[string]interface{}{"ensureSynced": false}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *rpcClient) ReceivePayment(ctx context.Context, req ReceiveRequest) (*ReceiveResponse, error) {
	var resp ReceiveResponse
	if err := c.call(ctx, "receive_payment", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.PaymentRequest) == "" {
		return nil, errors.New("breez: node returned empty payment request")
	}
	return &resp, nil
}

func (c *rpcClient) PrepareSendPayment(ctx context.Context, paymentRequest string) (*PrepareSendResponse, error) {
	params := map[string]string{"paymentRequest": paymentRequest}
	var resp PrepareSendResponse
	if err := c.call(ctx, "prepare_send_payment", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *rpcClient) SendPayment(ctx context.Context, prepared *PrepareSendResponse) (*Payment, error) {
	if prepared == nil {
		return nil, errors.New("breez: prepared response required")
	}
	var payment Payment
	if err := c.call(ctx, "send_payment", map[string]interface{}{"prepareResponse": prepared}, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *rpcClient) ListPayments(ctx context.Context) ([]Payment, error) {
	var resp struct {
		Payments []Payment `json:"payments"`
	}
	if err := c.call(ctx, "list_payments", map[string]interface{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Payments, nil
}

// AddEventListener subscribes to the node event stream. Events are decoded
// and handed to fn from a dedicated goroutine until the context is canceled
// or the session is disconnected.
func (c *rpcClient) AddEventListener(ctx context.Context, fn func(Event)) (string, error) {
	if fn == nil {
		return "", errors.New("breez: event listener required")
	}
	endpoint := c.eventsURL
	if endpoint == "" {
		endpoint = strings.Replace(c.baseURL, "http", "ws", 1) + "/events"
	}
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		return "", fmt.Errorf("breez: dial event stream: %w", err)
	}
	listenerID := uuid.NewString()
	go c.readEvents(ctx, conn, fn)
	return listenerID, nil
}

func (c *rpcClient) readEvents(ctx context.Context, conn *websocket.Conn, fn func(Event)) {
	defer conn.Close(websocket.StatusNormalClosure, "listener stopped")
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !c.closed.Load() {
				c.log.Warn("node event stream closed", "err", err)
			}
			return
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Warn("undecodable node event", "err", err)
			continue
		}
		fn(event)
	}
}

func (c *rpcClient) Disconnect(ctx context.Context) error {
	c.closed.Store(true)
	return c.call(ctx, "disconnect", map[string]interface{}{}, nil)
}

func (c *rpcClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID.Add(1)
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("breez: %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("breez: %s failed: status=%d", method, resp.StatusCode)
	}
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("breez: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("breez: %s: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("breez: %s returned no result", method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
