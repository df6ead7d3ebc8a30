package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// EpicAdapter delegates authentication and catalog metadata to the
// legendary CLI and parses its JSON output.
type EpicAdapter struct {
	// binary is the CLI name or path; overridable for tests.
	binary string
}

// NewEpicAdapter builds the adapter.
func NewEpicAdapter() *EpicAdapter {
	return &EpicAdapter{binary: "legendary"}
}

func (a *EpicAdapter) Store() string { return store.StoreEpic }

type legendaryGame struct {
	AppName  string `json:"app_name"`
	AppTitle string `json:"app_title"`
	Metadata struct {
		Developer    string `json:"developer"`
		CreationDate string `json:"creationDate"`
		KeyImages    []struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"keyImages"`
	} `json:"metadata"`
}

// Fetch runs `legendary list --json` and normalizes the output. The
// CLI's "re-auth required" condition maps to the auth-expired kind so
// the user gets a re-login prompt instead of a retry loop.
func (a *EpicAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	timer := logging.StartTimer(logging.CategorySources, "epic.Fetch")
	defer timer.Stop()

	if _, err := exec.LookPath(a.binary); err != nil {
		return nil, NotConfiguredError(store.StoreEpic, "legendary CLI")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.binary, "list", "--json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		combined := stderr.String()
		if strings.Contains(strings.ToLower(combined), "re-auth required") ||
			strings.Contains(strings.ToLower(combined), "login failed") {
			return nil, fmt.Errorf("epic: legendary needs re-login: %w", ErrAuthExpired)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("epic: legendary timed out: %w", ErrNetwork)
		}
		return nil, fmt.Errorf("epic: legendary failed: %v: %s", err, firstLine(combined))
	}

	var games []legendaryGame
	if err := json.Unmarshal(stdout.Bytes(), &games); err != nil {
		return nil, fmt.Errorf("epic: bad legendary output: %w", ErrParse)
	}

	logging.Sources("Epic (legendary) reports %d games", len(games))

	raws := make([]RawGame, 0, len(games))
	for _, g := range games {
		if g.AppTitle == "" || g.AppName == "" {
			logging.SourcesDebug("Skipping epic entry without title/app_name")
			continue
		}
		raw := RawGame{
			Name:     g.AppTitle,
			Store:    store.StoreEpic,
			StoreID:  g.AppName,
			CoverURL: epicCoverURL(g),
		}
		if g.Metadata.Developer != "" {
			raw.Developers = []string{g.Metadata.Developer}
		}
		if t, err := time.Parse(time.RFC3339, g.Metadata.CreationDate); err == nil {
			raw.ReleaseDate = &t
		}
		if extra, err := json.Marshal(g); err == nil {
			raw.ExtraData = extra
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// epicCoverURL picks the tall box art when present, falling back to any
// thumbnail.
func epicCoverURL(g legendaryGame) string {
	var fallback string
	for _, img := range g.Metadata.KeyImages {
		switch img.Type {
		case "DieselGameBoxTall", "DieselGameBox":
			return img.URL
		case "Thumbnail":
			fallback = img.URL
		}
	}
	return fallback
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
