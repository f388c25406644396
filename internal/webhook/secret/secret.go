// Package secret resolves the webhook signing secret, optionally unwrapping it with a KMS key.
package secret

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"gocloud.dev/secrets"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// Keeper decrypts a wrapped secret. *secrets.Keeper implements it.
type Keeper interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// OpenKeeper opens a keeper for keyURI.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func OpenKeeper(ctx context.Context, keyURI string) (Keeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// Load returns the webhook secret. Without a key URI the configured value is used as is;
// otherwise it must be base64 ciphertext produced by that key.
func Load(ctx context.Context, value, keyURI string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}
	if keyURI == "" {
		return []byte(value), nil
	}

	keeper, err := OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keeper.Close()
	}()

	return Unwrap(ctx, keeper, value)
}

// Unwrap decodes and decrypts a base64 ciphertext with keeper.
func Unwrap(ctx context.Context, keeper Keeper, encoded string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook secret: %w", err)
	}

	plaintext, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("decrypted webhook secret is empty")
	}
	return plaintext, nil
}
