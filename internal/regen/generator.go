package regen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// HTTPGenerator drives a content-generation service over HTTP. The
// service owns what "content" means; this side only guarantees clear
// before generate and at most one live set per territory.
type HTTPGenerator struct {
	BaseURL string
	Client  *http.Client
}

func (g *HTTPGenerator) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (g *HTTPGenerator) Clear(ctx context.Context, key Key) error {
	return g.post(ctx, "/v1/clear", map[string]any{
		"territory_id":   int(key.TerritoryID),
		"territory_type": key.TerritoryType,
	})
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) error {
	return g.post(ctx, "/v1/generate", req)
}

// NopGenerator stands in when no content service is configured, so the
// dispatch pipeline still runs end to end.
type NopGenerator struct {
	Log *log.Logger
}

func (g *NopGenerator) Clear(_ context.Context, key Key) error {
	if g.Log != nil {
		g.Log.Printf("clear territory %d (%s)", key.TerritoryID, key.TerritoryType)
	}
	return nil
}

func (g *NopGenerator) Generate(_ context.Context, req Request) error {
	if g.Log != nil {
		g.Log.Printf("generate %s territory %d owner %d", req.RequestID, req.TerritoryID, req.DominantFaction)
	}
	return nil
}
