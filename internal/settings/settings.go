// Package settings is the typed, process-wide registry over the
// persisted key/value table. Credentials for storefronts live here;
// feature flags can be overridden by environment variables, which
// always win over database values.
package settings

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// Recognized setting keys.
const (
	KeySteamAPIKey      = "steam_api_key"
	KeySteamUserID      = "steam_user_id"
	KeyIGDBClientID     = "igdb_client_id"
	KeyIGDBClientSecret = "igdb_client_secret"
	KeyItchToken        = "itch_api_key"
	KeyHumbleSession    = "humble_session_cookie"
	KeyBnetCookie       = "battlenet_cookie"
	KeyGOGDBPath        = "gog_db_path"
	KeyEABearerToken    = "ea_bearer_token"
	KeyAmazonTokens     = "amazon_oauth_tokens"
	KeyAmazonDBPath     = "amazon_db_path"
	KeyUseSteamClient   = "use_steam_client"
	KeySteamHelperPath  = "steam_helper_path"
	KeySecretKey        = "secret_key"
)

// flagEnvOverrides maps feature-flag keys to the environment variables
// that take precedence over the database.
var flagEnvOverrides = map[string]string{
	KeyUseSteamClient:  "USE_STEAM_CLIENT",
	KeySteamHelperPath: "STEAM_HELPER_PATH",
	KeySecretKey:       "SECRET_KEY",
}

// Registry reads and writes typed settings backed by the store.
type Registry struct {
	store *store.LibraryStore
	mu    sync.Mutex
}

// New builds a registry over the given store.
func New(s *store.LibraryStore) *Registry {
	return &Registry{store: s}
}

// String returns a setting value, or def when unset. Environment
// overrides apply to flag keys.
func (r *Registry) String(key, def string) string {
	if env, ok := flagEnvOverrides[key]; ok {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	v, err := r.store.GetSetting(key)
	if errors.Is(err, store.ErrSettingNotFound) {
		return def
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Setting read failed for %q: %v", key, err)
		return def
	}
	return v
}

// Bool parses a boolean setting. Accepts true/false, 1/0, yes/no.
func (r *Registry) Bool(key string, def bool) bool {
	v := r.String(key, "")
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	logging.Get(logging.CategoryStore).Warn("Setting %q has non-boolean value %q, using default", key, v)
	return def
}

// Int parses an integer setting.
func (r *Registry) Int(key string, def int) int {
	v := r.String(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Setting %q has non-integer value %q, using default", key, v)
		return def
	}
	return n
}

// Set writes one setting atomically.
func (r *Registry) Set(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.SetSetting(key, value)
}

// Delete removes one setting.
func (r *Registry) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeleteSetting(key)
}

// SecretKey returns the persistent cookie-signing secret, generating
// and persisting one on first use. The SECRET_KEY env var overrides.
func (r *Registry) SecretKey() (string, error) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.store.GetSetting(KeySecretKey)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, store.ErrSettingNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	key := hex.EncodeToString(buf)
	if err := r.store.SetSetting(KeySecretKey, key); err != nil {
		return "", err
	}
	logging.Boot("Generated new persistent secret key")
	return key, nil
}
