// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"github.com/bureau-foundation/nodewatch/lib/sealed"
	"github.com/bureau-foundation/nodewatch/lib/secret"
)

// Credential names.
const (
	TelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	MatrixAccessToken = "MATRIX_ACCESS_TOKEN"
)

// KnownNames are read from the environment when no bundle is used.
var KnownNames = []string{TelegramBotToken, MatrixAccessToken}

// Source says where to load credentials from.
type Source struct {
	// SealedFile holds base64 age ciphertext of a JSON object. When
	// set, it is the only source.
	SealedFile string
	// IdentityFile is the age identity that opens SealedFile.
	IdentityFile string
	// DotenvFile is read when SealedFile is empty. Optional.
	DotenvFile string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Bundle is a set of loaded credentials.
type Bundle struct {
	values map[string]*secret.Buffer
}

// Get returns the named credential, or nil if absent. The buffer is
// owned by the Bundle.
func (b *Bundle) Get(name string) *secret.Buffer {
	return b.values[name]
}

// Keys lists credential names, sorted.
func (b *Bundle) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for key := range b.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close releases every credential.
func (b *Bundle) Close() error {
	var errs []error
	for name, buffer := range b.values {
		if err := buffer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("credential: closing %s: %w", name, err))
		}
	}
	b.values = nil
	return errors.Join(errs...)
}

// Load reads credentials from source.
func Load(source Source) (*Bundle, error) {
	if source.SealedFile != "" {
		return loadSealed(source.SealedFile, source.IdentityFile)
	}

	getenv := source.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	values := make(map[string]string)
	if source.DotenvFile != "" {
		fileValues, err := godotenv.Read(source.DotenvFile)
		if err != nil {
			return nil, fmt.Errorf("credential: reading %s: %w", source.DotenvFile, err)
		}
		values = fileValues
	}
	for _, name := range KnownNames {
		if _, ok := values[name]; ok {
			continue
		}
		if value := getenv(name); value != "" {
			values[name] = value
		}
	}
	return newBundle(values)
}

func loadSealed(sealedFile, identityFile string) (*Bundle, error) {
	if identityFile == "" {
		return nil, fmt.Errorf("credential: %s needs an identity file", sealedFile)
	}
	ciphertext, err := os.ReadFile(sealedFile)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	identity, err := secret.ReadFile(identityFile)
	if err != nil {
		return nil, fmt.Errorf("credential: reading identity: %w", err)
	}
	defer identity.Close()

	plaintext, err := sealed.Decrypt(string(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("credential: opening %s: %w", sealedFile, err)
	}
	defer plaintext.Close()

	var values map[string]string
	if err := json.Unmarshal(plaintext.Bytes(), &values); err != nil {
		return nil, fmt.Errorf("credential: %s is not a JSON object of strings: %w", sealedFile, err)
	}
	return newBundle(values)
}

func newBundle(values map[string]string) (*Bundle, error) {
	bundle := &Bundle{values: make(map[string]*secret.Buffer, len(values))}
	for name, value := range values {
		if value == "" {
			continue
		}
		buffer, err := secret.FromString(value)
		if err != nil {
			bundle.Close()
			return nil, fmt.Errorf("credential: protecting %s: %w", name, err)
		}
		bundle.values[name] = buffer
	}
	return bundle, nil
}

// SealResult is the output of Seal.
type SealResult struct {
	// Ciphertext is base64 age ciphertext, ready to write to the
	// daemon's sealed file.
	Ciphertext string
	// Keys lists the credential names (not values) sealed.
	Keys []string
}

// Seal encrypts credentials to every recipient key.
func Seal(credentials map[string]string, recipientKeys []string) (*SealResult, error) {
	if len(credentials) == 0 {
		return nil, fmt.Errorf("credential: nothing to seal")
	}
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("credential: at least one recipient key is required")
	}
	for _, key := range recipientKeys {
		if err := sealed.ParsePublicKey(key); err != nil {
			return nil, fmt.Errorf("credential: %w", err)
		}
	}

	keys := make([]string, 0, len(credentials))
	for key := range credentials {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	plaintext, err := json.Marshal(credentials)
	if err != nil {
		return nil, fmt.Errorf("credential: marshaling: %w", err)
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Encrypt(plaintext, recipientKeys)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return &SealResult{Ciphertext: ciphertext, Keys: keys}, nil
}
