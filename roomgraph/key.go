// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomgraph

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// LoadOrCreateSigningKey reads the server's ed25519 seed from path
// (unpadded base64), generating and persisting a fresh key when the
// file does not exist. The returned key ID is "ed25519:" plus a short
// fingerprint of the public key, stable across restarts.
func LoadOrCreateSigningKey(path string) (ed25519.PrivateKey, string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, "", fmt.Errorf("roomgraph: decoding signing key %s: %w", path, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, "", fmt.Errorf("roomgraph: signing key %s: seed must be %d bytes, got %d", path, ed25519.SeedSize, len(seed))
		}
		key := ed25519.NewKeyFromSeed(seed)
		return key, keyID(key), nil

	case os.IsNotExist(err):
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, "", fmt.Errorf("roomgraph: generating signing key: %w", err)
		}
		encoded := base64.RawStdEncoding.EncodeToString(key.Seed())
		if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
			return nil, "", fmt.Errorf("roomgraph: writing signing key %s: %w", path, err)
		}
		return key, keyID(key), nil

	default:
		return nil, "", fmt.Errorf("roomgraph: reading signing key %s: %w", path, err)
	}
}

func keyID(key ed25519.PrivateKey) string {
	public := key.Public().(ed25519.PublicKey)
	fingerprint := base64.RawURLEncoding.EncodeToString(public)[:8]
	return "ed25519:" + fingerprint
}
