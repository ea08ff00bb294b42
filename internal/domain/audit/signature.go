package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"time"
)

type signaturePayload struct {
	AuditID    string `json:"auditId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Account    string `json:"account"`
	Movement   string `json:"movement"`
	Amount     int64  `json:"amount"`
	Family     string `json:"family,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func buildSignaturePayload(r *Record) signaturePayload {
	return signaturePayload{
		AuditID:    r.AuditID.String(),
		EntityType: string(r.EntityType),
		EntityID:   r.EntityID,
		Account:    r.Account,
		Movement:   string(r.Movement),
		Amount:     r.Amount,
		Family:     r.Family,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// SignRecord generates an HMAC signature for the record.
func SignRecord(r *Record, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(r))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyRecordSignature verifies the HMAC signature for the record.
func VerifyRecordSignature(r *Record, key []byte) (bool, error) {
	if len(r.Signature) == 0 {
		return false, nil
	}
	expected, err := SignRecord(r, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, r.Signature), nil
}
