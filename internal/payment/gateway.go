package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var ErrGatewayUnavailable = errors.New("payment: gateway unavailable")

// Intent is the gateway's handle for a pending payment. Ref is the gateway's
// own identifier; webhooks carry it back and it is the only key we can use to
// find the order again.
type Intent struct {
	Ref          string          `json:"ref"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, orderNumber int64, amount decimal.Decimal, currency string) (*Intent, error)
}

type httpGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string) Gateway {
	return &httpGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type createIntentRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type createIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

func (g *httpGateway) CreateIntent(ctx context.Context, orderNumber int64, amount decimal.Decimal, currency string) (*Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		Reference: fmt.Sprintf("order-%d", orderNumber),
		Amount:    amount.StringFixed(2),
		Currency:  currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payment: failed to marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: failed to build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment: gateway rejected intent with status %d", resp.StatusCode)
	}

	var decoded createIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("payment: failed to decode intent response: %w", err)
	}

	return &Intent{
		Ref:          decoded.ID,
		ClientSecret: decoded.ClientSecret,
		Amount:       amount,
		Currency:     currency,
	}, nil
}
