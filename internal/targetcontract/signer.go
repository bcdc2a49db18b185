package targetcontract

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/eth2near/relay/internal/relayerrors"
)

// keyFileJSON mirrors the NEAR CLI's account key file format: an account id
// alongside an "ed25519:<base58-or-base64>"-prefixed private key. This
// relay accepts the base64 form; base58 key files must be converted ahead
// of time by operator tooling.
type keyFileJSON struct {
	AccountID  string `json:"account_id"`
	PrivateKey string `json:"private_key"`
}

// LoadSigner reads a signer key file at path. A malformed or unreadable
// file is a ConfigError: the relay must fail fast at startup rather than
// discover a broken signer mid-loop.
func LoadSigner(path string) (Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Signer{}, relayerrors.Config("load signer key", err)
	}

	var kf keyFileJSON
	if err := json.Unmarshal(raw, &kf); err != nil {
		return Signer{}, relayerrors.Config("parse signer key", err)
	}
	if kf.AccountID == "" {
		return Signer{}, relayerrors.Config("parse signer key", fmt.Errorf("missing account_id"))
	}

	const prefix = "ed25519:"
	if !strings.HasPrefix(kf.PrivateKey, prefix) {
		return Signer{}, relayerrors.Config("parse signer key", fmt.Errorf("private_key missing %q prefix", prefix))
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(kf.PrivateKey, prefix))
	if err != nil {
		return Signer{}, relayerrors.Config("parse signer key", err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return Signer{}, relayerrors.Config("parse signer key",
			fmt.Errorf("expected %d-byte ed25519 private key, got %d", ed25519.PrivateKeySize, len(decoded)))
	}

	return NewSigner(kf.AccountID, ed25519.PrivateKey(decoded)), nil
}
