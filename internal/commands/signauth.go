// Package commands implements the node's command envelope (spec §6
// "Command envelope"): decoding the tagged Orchestrate* variants and the
// twelve untagged CommandType variants, executing the ones that run
// purely against local state, and translating session-kickoff commands
// into dispatcher new-session announcements.
//
// Grounded on original_source/backend/node/src/command.rs's
// process_request/JsonCommand::execute (decode, log, execute, reply) and
// auth.rs/authorization.rs's signing-request authentication flow.
package commands

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keystore"
	"github.com/gridlocknet/node-core/pkg/pairwise"
)

// transferGuardPrefix is the fixed human-readable prefix a transfer
// transaction's signed message must start with (spec §6 step d, S6).
const transferGuardPrefix = "Authorizing ownership transfer to "

// SigningAuth carries the fields a signing command's body attaches for
// node-side authentication (spec §6 "Signing request authentication"),
// in addition to the message bytes being signed. Binary fields are
// base64, matching the bus's plaintext-JSON encoding of the e2e-sealed
// payload.
type SigningAuth struct {
	ClientE2EPublicKey  string `json:"client_e2e_public_key"`
	EncryptedSigningKey string `json:"encrypted_signing_key"`
	Timestamp           string `json:"timestamp"`
	MessageHMAC         string `json:"message_hmac"`
	Email               string `json:"email"`
	IsTransferTx        bool   `json:"is_transfer_tx"`
}

// ErrAuthFailed is returned for any authentication failure; per spec §6
// these are logged, never surfaced to the caller, so callers should not
// echo its message back over the bus.
var ErrAuthFailed = fmt.Errorf("commands: signing request authentication failed")

// VerifySigningAuth runs the five authentication steps of spec §6 against
// a signing command's auth block, returning nil only once every step has
// passed and — for a transfer transaction — the consumed transfer key
// has been deleted. message is the raw payload the client asked to be
// signed (used only to check the transfer-guard prefix).
func VerifySigningAuth(store *keystore.Store, id *identity.NodeIdentity, keyID string, auth SigningAuth, message []byte) error {
	clientPub, err := decode32(auth.ClientE2EPublicKey)
	if err != nil {
		return fmt.Errorf("%w: bad client_e2e_public_key: %v", ErrAuthFailed, err)
	}
	sealed, err := base64.StdEncoding.DecodeString(auth.EncryptedSigningKey)
	if err != nil {
		return fmt.Errorf("%w: bad encrypted_signing_key: %v", ErrAuthFailed, err)
	}

	// (a) decrypt the signing key under the node's long-lived e2e seed
	// and the client's announced e2e public key.
	shared, err := pairwise.SharedKey(id.E2ESeed, clientPub)
	if err != nil {
		return fmt.Errorf("%w: derive shared key: %v", ErrAuthFailed, err)
	}
	signingKey, err := pairwise.Open(shared, sealed)
	if err != nil {
		return fmt.Errorf("%w: decrypt signing key: %v", ErrAuthFailed, err)
	}

	// (b) verify the HMAC over timestamp||email under the decrypted key.
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(auth.Timestamp + auth.Email))
	wantHMAC, err := base64.StdEncoding.DecodeString(auth.MessageHMAC)
	if err != nil {
		return fmt.Errorf("%w: bad message_hmac: %v", ErrAuthFailed, err)
	}
	if !hmac.Equal(mac.Sum(nil), wantHMAC) {
		return fmt.Errorf("%w: hmac mismatch", ErrAuthFailed)
	}

	// (c) enforce a strictly increasing timestamp per (key_id, email).
	ts, err := time.Parse(time.RFC3339, auth.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp: %v", ErrAuthFailed, err)
	}
	lastTSType := "last_signing_ts_" + keyID
	if prev, err := store.LoadUserMetadata(auth.Email, lastTSType); err == nil {
		prevTS, err := time.Parse(time.RFC3339, string(prev))
		if err == nil && !ts.After(prevTS) {
			return fmt.Errorf("%w: timestamp did not advance", ErrAuthFailed)
		}
	}

	// (d) transfer-transaction guard: the message must match the stored
	// new_identity_key exactly, or the request is dropped (S6).
	if auth.IsTransferTx {
		wantKey, err := store.LoadUserMetadata(auth.Email, "new_identity_key")
		if err != nil {
			return fmt.Errorf("%w: no pending transfer key", ErrAuthFailed)
		}
		claimed, ok := strings.CutPrefix(string(message), transferGuardPrefix)
		if !ok || claimed != string(wantKey) {
			return fmt.Errorf("%w: transfer guard mismatch", ErrAuthFailed)
		}
	}

	// (e) compare the decrypted signing key against the stored access key.
	accessKey, err := store.LoadAccessKey(auth.Email)
	if err != nil {
		return fmt.Errorf("%w: no access key on file: %v", ErrAuthFailed, err)
	}
	if subtle.ConstantTimeCompare(accessKey, signingKey) != 1 {
		return fmt.Errorf("%w: signing key does not match access key", ErrAuthFailed)
	}

	// All checks passed: advance the replay-protection timestamp and, for
	// a transfer, consume the one-shot transfer key.
	if err := store.SaveUserMetadata(auth.Email, lastTSType, []byte(auth.Timestamp)); err != nil {
		return fmt.Errorf("commands: persist last signing timestamp: %w", err)
	}
	if auth.IsTransferTx {
		if err := store.DeleteUserMetadata(auth.Email, "new_identity_key"); err != nil {
			return fmt.Errorf("commands: consume transfer key: %w", err)
		}
	}
	return nil
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
