// Package signature implements the kernel's content-integrity layer:
// canonicalization, SHA-256 content hashing, the first-line signature
// marker, and an optional Ed25519 asymmetric signature extension point.
package signature

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/kernel"
)

const markerPrefix = "kiwi-mcp:validated:"

var markerLine = regexp.MustCompile(`^(.*?)` + regexp.QuoteMeta(markerPrefix) + `([0-9T:\-.Z]+):([0-9a-f]{64})(?::sig=([A-Za-z0-9+/=]+))?\s*$`)

// Marker is the parsed form of a source's first-line signature.
type Marker struct {
	CommentPrefix string
	Timestamp     time.Time
	Hash          string
	Sig           string
}

// commentPrefixFor picks a language-appropriate comment token based on
// file extension, matching the set of comment styles the content store's
// three item kinds use.
func commentPrefixFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".md"):
		return "<!--"
	case strings.HasSuffix(path, ".py"):
		return "#"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "#"
	default:
		return "//"
	}
}

// Canonicalize strips the signature line (if present) and normalizes
// trailing whitespace on every remaining line.
func Canonicalize(src []byte) []byte {
	lines := bytes.Split(src, []byte("\n"))
	if len(lines) > 0 && markerLine.Match(lines[0]) {
		lines = lines[1:]
	}
	for i, l := range lines {
		lines[i] = bytes.TrimRight(l, " \t\r")
	}
	return bytes.Join(lines, []byte("\n"))
}

// Hash computes the content hash: canonicalize, then SHA-256 over the
// UTF-8 bytes, lower-hex encoded.
func Hash(src []byte) string {
	sum := sha256.Sum256(Canonicalize(src))
	return hex.EncodeToString(sum[:])
}

// Sign re-emits src with an updated signature line. If priv is non-nil, an
// additional sig=<base64> field is appended, computed over the content
// hash bytes.
func Sign(path string, src []byte, priv ed25519.PrivateKey) ([]byte, *Marker, error) {
	hash := Hash(src)
	ts := time.Now().UTC()

	line := fmt.Sprintf("%s %s%s:%s", commentPrefixFor(path), markerPrefix, ts.Format(time.RFC3339), hash)
	marker := &Marker{CommentPrefix: commentPrefixFor(path), Timestamp: ts, Hash: hash}

	if priv != nil {
		sig := ed25519.Sign(priv, []byte(hash))
		sigB64 := base64.StdEncoding.EncodeToString(sig)
		line += ":sig=" + sigB64
		marker.Sig = sigB64
	}

	body := Canonicalize(src)
	out := append([]byte(line+"\n"), body...)
	return out, marker, nil
}

// Parse extracts the Marker from src's first line, if any.
func Parse(src []byte) (*Marker, bool) {
	first, _, _ := bytes.Cut(src, []byte("\n"))
	m := markerLine.FindStringSubmatch(string(first))
	if m == nil {
		return nil, false
	}
	ts, _ := time.Parse(time.RFC3339, m[2])
	return &Marker{CommentPrefix: strings.TrimSpace(m[1]), Timestamp: ts, Hash: m[3], Sig: m[4]}, true
}

// VerifyOptions controls how strictly Verify enforces the signature.
type VerifyOptions struct {
	// Required, when true, makes a missing signature line a failure
	// rather than a silent pass. Registry-origin loads MUST set this.
	Required bool
	// PublicKey, if set, is used to verify an embedded sig= field.
	PublicKey ed25519.PublicKey
}

// Verify checks that src's embedded hash matches its canonicalized
// content, returning a *kernel.Error with code signature_invalid on
// mismatch, missing-when-required, or asymmetric-signature failure.
func Verify(src []byte, opts VerifyOptions) error {
	marker, ok := Parse(src)
	if !ok {
		if opts.Required {
			return kernel.New(kernel.CodeSignatureInvalid, "item has no signature marker but one is required for this load path")
		}
		return nil
	}

	got := Hash(src)
	if got != marker.Hash {
		return kernel.New(kernel.CodeSignatureInvalid, "content hash mismatch").
			WithData("expected_hash", marker.Hash).
			WithData("got_hash", got)
	}

	if marker.Sig != "" && opts.PublicKey != nil {
		sig, err := base64.StdEncoding.DecodeString(marker.Sig)
		if err != nil {
			return kernel.New(kernel.CodeSignatureInvalid, "malformed sig field: %v", err)
		}
		if !ed25519.Verify(opts.PublicKey, []byte(marker.Hash), sig) {
			return kernel.New(kernel.CodeSignatureInvalid, "asymmetric signature verification failed")
		}
	}

	return nil
}

// GenerateKeyPair creates a new Ed25519 signing key pair for sign(...)'s
// optional private-key parameter.
func GenerateKeyPair(seed []byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	if seed == nil {
		pub, priv, _ := ed25519.GenerateKey(nil)
		return pub, priv
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}
