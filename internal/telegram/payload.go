package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const payloadTypeStars = "stars_purchase"

var ErrBadPayload = errors.New("invalid invoice payload")

// InvoicePayload зашивается в счет и возвращается в pre_checkout_query и successful_payment
type InvoicePayload struct {
	Type          string `json:"type"`
	TransactionID int64  `json:"transaction_id"`
	UserID        int64  `json:"user_id"`
	StarsAmount   int64  `json:"stars_amount"`
	Timestamp     int64  `json:"timestamp"`
	Nonce         string `json:"nonce"`
}

func NewInvoicePayload(txID, userID, stars int64) InvoicePayload {
	return InvoicePayload{
		Type:          payloadTypeStars,
		TransactionID: txID,
		UserID:        userID,
		StarsAmount:   stars,
		Timestamp:     time.Now().Unix(),
		Nonce:         strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}
}

func (p InvoicePayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ParseInvoicePayload(raw string) (InvoicePayload, error) {
	var p InvoicePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.Type != payloadTypeStars || p.TransactionID <= 0 || p.UserID <= 0 || p.StarsAmount <= 0 {
		return p, ErrBadPayload
	}
	return p, nil
}
