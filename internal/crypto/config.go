package crypto

import "fmt"

// EncryptKeyFile encrypts raw key material (an Ed25519 seed or private key
// blob) before it's written to the signing key file on disk. If key is
// nil, the blob is returned unchanged (no-op); Encrypt itself has no such
// passthrough and rejects a nil key.
func EncryptKeyFile(blob []byte, key []byte) (string, error) {
	if key == nil {
		return string(blob), nil
	}
	enc, err := Encrypt(string(blob), key)
	if err != nil {
		return "", fmt.Errorf("encrypt signing key file: %w", err)
	}
	return enc, nil
}

// DecryptKeyFile reverses EncryptKeyFile. A blob without the "enc:" prefix
// is returned as-is, so an operator can drop in an unencrypted key file
// when no encryption_key is configured.
func DecryptKeyFile(contents string, key []byte) ([]byte, error) {
	if key == nil {
		return []byte(contents), nil
	}
	dec, err := Decrypt(contents, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt signing key file: %w", err)
	}
	return []byte(dec), nil
}
