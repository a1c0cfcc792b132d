package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// PaymentOracle decides whether a transaction hash pays for a purchase.
type PaymentOracle interface {
	Verify(ctx context.Context, txHash string, amount decimal.Decimal) (bool, error)
}

// OptimisticOracle accepts any non-empty hash. Payments are reconciled by
// an operator out of band.
type OptimisticOracle struct{}

func (OptimisticOracle) Verify(_ context.Context, txHash string, _ decimal.Decimal) (bool, error) {
	return txHash != "", nil
}

// HTTPOracle asks an external verifier whether a hash paid amount TRX to the
// receiving address.
type HTTPOracle struct {
	BaseURL string
	Address string
	Client  *http.Client
}

type verifyRequest struct {
	TransactionHash string `json:"transaction_hash"`
	Address         string `json:"address"`
	Amount          string `json:"amount"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func NewHTTPOracle(baseURL, address string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPOracle{
		BaseURL: baseURL,
		Address: address,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Verify calls POST /verify on the verifier.
func (o *HTTPOracle) Verify(ctx context.Context, txHash string, amount decimal.Decimal) (bool, error) {
	url := fmt.Sprintf("%s/verify", o.BaseURL)

	jsonData, err := json.Marshal(verifyRequest{
		TransactionHash: txHash,
		Address:         o.Address,
		Amount:          amount.String(),
	})
	if err != nil {
		return false, errors.Wrap(err, "encode verify request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, errors.Wrap(err, "build verify request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "call payment verifier")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Warnf("[PURCHASE] payment verifier returned %d: %s", resp.StatusCode, string(body))
		return false, errors.Errorf("payment verifier returned %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, errors.Wrap(err, "decode verify response")
	}
	if !out.Valid && out.Reason != "" {
		log.WithField("tx_hash", txHash).Infof("[PURCHASE] payment rejected by verifier: %s", out.Reason)
	}
	return out.Valid, nil
}
