package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pinksters/polkagodot-plugin/logger"
)

// SignatureExpiration bounds how long a stored signature stays valid.
const SignatureExpiration = 7 * 24 * time.Hour

type signatureRecord struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// CredentialStore keeps per-address signatures and auth keys in a KV.
// Signatures carry a creation timestamp and are evicted on read once
// they pass SignatureExpiration. Auth keys are stored verbatim.
type CredentialStore struct {
	kv     KV
	prefix string
	expiry time.Duration
	log    logger.Logger

	// now is swapped out in tests to control expiry.
	now func() time.Time
}

func NewCredentialStore(kv KV, prefix string, log logger.Logger) *CredentialStore {
	if kv == nil {
		kv = NewMemory()
	}
	if log == nil {
		log = &logger.NoopLogger{}
	}
	return &CredentialStore{
		kv:     kv,
		prefix: prefix,
		expiry: SignatureExpiration,
		log:    log,
		now:    time.Now,
	}
}

func (s *CredentialStore) signatureKey(address string) string {
	return s.prefix + "signature_" + address
}

func (s *CredentialStore) authKey(address string) string {
	return s.prefix + "authkey_" + address
}

// StoreSignature records a signature for the address stamped with the
// current time. Empty inputs are logged and ignored.
func (s *CredentialStore) StoreSignature(ctx context.Context, address, signature string) {
	if address == "" || signature == "" {
		s.log.Error("cannot store signature with empty address or signature", map[string]interface{}{
			"address": address,
		})
		return
	}
	rec := signatureRecord{
		Signature: signature,
		Timestamp: s.now().UnixMilli(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("failed to encode signature record", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
		return
	}
	if err := s.kv.Set(ctx, s.signatureKey(address), string(payload)); err != nil {
		s.log.Error("failed to persist signature", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}
}

// LoadSignature returns the stored signature for the address, or the empty
// string when none exists. Expired and unreadable records are deleted.
func (s *CredentialStore) LoadSignature(ctx context.Context, address string) string {
	if address == "" {
		s.log.Error("cannot load signature for empty address", nil)
		return ""
	}
	key := s.signatureKey(address)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Error("failed to read signature", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
		return ""
	}
	if raw == "" {
		return ""
	}
	var rec signatureRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Signature == "" || rec.Timestamp == 0 {
		s.log.Warn("discarding corrupt signature record", map[string]interface{}{
			"address": address,
		})
		s.deleteKey(ctx, key, address)
		return ""
	}
	age := s.now().UnixMilli() - rec.Timestamp
	if age > s.expiry.Milliseconds() {
		s.log.Info("stored signature expired", map[string]interface{}{
			"address": address,
		})
		s.deleteKey(ctx, key, address)
		return ""
	}
	return rec.Signature
}

// StoreAuthKey records an auth key for the address. Empty inputs are
// logged and ignored.
func (s *CredentialStore) StoreAuthKey(ctx context.Context, address, authKey string) {
	if address == "" || authKey == "" {
		s.log.Error("cannot store auth key with empty address or key", map[string]interface{}{
			"address": address,
		})
		return
	}
	if err := s.kv.Set(ctx, s.authKey(address), authKey); err != nil {
		s.log.Error("failed to persist auth key", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}
}

// LoadAuthKey returns the stored auth key for the address, or the empty
// string when none exists.
func (s *CredentialStore) LoadAuthKey(ctx context.Context, address string) string {
	if address == "" {
		s.log.Error("cannot load auth key for empty address", nil)
		return ""
	}
	raw, err := s.kv.Get(ctx, s.authKey(address))
	if err != nil {
		s.log.Error("failed to read auth key", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
		return ""
	}
	return raw
}

// DeleteCredentials removes both the signature and auth key for an address.
func (s *CredentialStore) DeleteCredentials(ctx context.Context, address string) {
	if address == "" {
		return
	}
	s.deleteKey(ctx, s.signatureKey(address), address)
	s.deleteKey(ctx, s.authKey(address), address)
}

func (s *CredentialStore) deleteKey(ctx context.Context, key, address string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Error("failed to delete stored credential", map[string]interface{}{
			"address": address,
			"error":   err.Error(),
		})
	}
}
