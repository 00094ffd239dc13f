package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	workspaceKeyPrefix  = "cg_"
	triggerSecretPrefix = "whsec_"
	webhookTokenPrefix  = "hk_"
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// HashTriggerSecret hashes an incoming trigger secret for storage.
func HashTriggerSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckTriggerSecret compares the presented secret with the stored hash.
func CheckTriggerSecret(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))

	return err == nil
}

// GenerateTriggerSecret returns a fresh random shared secret for a trigger.
func GenerateTriggerSecret() (string, error) {
	raw, _, _, err := generateSecretMaterial(triggerSecretPrefix)
	return raw, err
}

// GenerateWebhookToken returns the unique path token of an incoming trigger URL.
func GenerateWebhookToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return webhookTokenPrefix + strings.ToLower(secretEncoding.EncodeToString(b)), nil
}

func generateSecretMaterial(prefix string) (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(secretEncoding.EncodeToString(b))
	rawKey := prefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("secret generation failed: key too short")
	}
	keyPrefix := rawKey[:min(len(rawKey), 16)]
	return rawKey, keyPrefix, HashAPIKey(rawKey), nil
}
