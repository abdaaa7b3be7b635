package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/kiwimcp/internal/chain"
	"github.com/rakunlabs/kiwimcp/internal/config"
	"github.com/rakunlabs/kiwimcp/internal/content"
	"github.com/rakunlabs/kiwimcp/internal/crypto"
	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/mcpserver"
	"github.com/rakunlabs/kiwimcp/internal/metaops"
	"github.com/rakunlabs/kiwimcp/internal/permission"
	"github.com/rakunlabs/kiwimcp/internal/registry"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

var (
	name    = "kiwimcp"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(ctx, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := content.New(cfg.ProjectPath, cfg.UserPath, cfg.BundledPath)
	resolver := chain.New(store)

	// Warm the chain cache with the bundled runtime and primitive tools
	// before serving the first request.
	if tools, err := store.List(item.TypeTool, ""); err == nil {
		var warm []string
		for _, t := range tools {
			if t.Origin == item.OriginBundled && (strings.HasPrefix(t.Category+"/", "runtimes/") || strings.HasPrefix(t.Category+"/", "primitives/")) {
				warm = append(warm, t.ID)
			}
		}
		if _, err := resolver.ResolveBatch(warm); err != nil {
			slog.Warn("preloading runtime chains", "error", err)
		}
	}

	idx := search.NewIndex(nil)
	if err := indexContentRoots(store, idx); err != nil {
		slog.Warn("partial search index build", "error", err)
	}
	hybrid := search.NewHybrid(idx, nil)
	hybrid.Weights = search.HybridWeights{
		Vector: cfg.Search.VectorWeight, Keyword: cfg.Search.KeywordWeight, Recency: cfg.Search.RecencyWeight,
	}

	reg := registry.NewMemory()

	auditDir := cfg.Permission.AuditLogPath
	if auditDir == "" {
		auditDir = cfg.ProjectPath
	}
	audit := permission.NewAuditLog(auditDir)

	k := metaops.New(store, resolver, hybrid, reg, audit)
	k.RateLimiter = permission.NewRateLimiter(cfg.Permission.RateLimits)
	k.LoopDetector = permission.NewLoopDetector(cfg.Permission.LoopWindow, cfg.Permission.LoopRepeatCount)
	k.RequireSigned = cfg.Signing.RequireSigned

	if cfg.Signing.PrivateKeyPath != "" {
		priv, pub, err := loadSigningKeys(cfg.Signing.PrivateKeyPath, cfg.Signing.PublicKeyPath, cfg.Signing.EncryptionKey)
		if err != nil {
			return fmt.Errorf("load signing keys: %w", err)
		}
		k.SigningKey = priv
		k.VerifyKey = pub
	}

	srv := mcpserver.New(k, mcpserver.ServerInfo{Name: name, Version: version}, slog.Default())
	return srv.Run(ctx)
}

// indexContentRoots walks the project/user/bundled roots and seeds the
// keyword index from every item's manifest. A tool/directive/knowledge
// file that fails to parse is skipped, not fatal: search should degrade
// gracefully rather than block startup on one malformed item.
func indexContentRoots(store *content.Store, idx *search.Index) error {
	var errs []error
	for _, typ := range []item.Type{item.TypeDirective, item.TypeTool, item.TypeKnowledge} {
		items, err := store.List(typ, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s items: %w", typ, err))
			continue
		}
		for _, it := range items {
			idx.Upsert(&search.Document{
				ID: it.ID, Type: it.Type, Title: it.Manifest.Title, Preview: it.Manifest.Description,
				Fields: map[string]string{
					"title":       it.Manifest.Title,
					"description": it.Manifest.Description,
					"tags":        joinTags(it.Manifest.Tags),
					"category":    it.Category,
				},
			})
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// loadSigningKeys reads an Ed25519 key pair off disk: both files hold
// base64-encoded key bytes, optionally AES-GCM encrypted under
// encryptionPassphrase (see internal/crypto). The public key is optional;
// without it, sign still appends a sig= field made with the private key,
// but no embedded sig= field is verified on load.
func loadSigningKeys(privPath, pubPath, encryptionPassphrase string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	var key []byte
	if encryptionPassphrase != "" {
		var err error
		key, err = crypto.DeriveKey(encryptionPassphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("derive key-file encryption key: %w", err)
		}
	}

	privBlob, err := os.ReadFile(privPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key file %s: %w", privPath, err)
	}
	privRaw, err := crypto.DecryptKeyFile(string(privBlob), key)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt private key file: %w", err)
	}
	priv, err := decodeEd25519(privRaw, ed25519.PrivateKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("decode private key: %w", err)
	}

	if pubPath == "" {
		return ed25519.PrivateKey(priv), nil, nil
	}
	pubBlob, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key file %s: %w", pubPath, err)
	}
	pubRaw, err := crypto.DecryptKeyFile(string(pubBlob), key)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt public key file: %w", err)
	}
	pub, err := decodeEd25519(pubRaw, ed25519.PublicKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("decode public key: %w", err)
	}

	return ed25519.PrivateKey(priv), ed25519.PublicKey(pub), nil
}

func decodeEd25519(blob []byte, wantSize int) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if len(decoded) != wantSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", wantSize, len(decoded))
	}
	return decoded, nil
}
