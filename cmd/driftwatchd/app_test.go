package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Suvan8806/driftwatch/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftwatch.toml")
	contents := `
[storage]
path = "` + filepath.Join(t.TempDir(), "dw.db") + `"

[http]
listen_addr = "127.0.0.1:18080"
drain_timeout = "1s"

[baseline]
min_samples_for_baseline = 3

[ingest]
queue_capacity = 256
nworkers = 4

[retention]
sweep_interval = "1h"
`
	if err := writeFile(path, contents); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

func TestApplicationEndToEndIngestReachesServiceContext(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// Give the worker pool and HTTP listener a moment to start.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		body, _ := json.Marshal(map[string]any{
			"service_id": "checkout", "latency_ms": 150.0, "payload_kb": 2.0,
		})
		resp, err := http.Post(serverURL(app), "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("post sample: %v", err)
		}
		resp.Body.Close()
	}

	time.Sleep(100 * time.Millisecond)

	svcCtx, err := app.registry.Get(context.Background(), "checkout")
	if err != nil {
		t.Fatalf("get service context: %v", err)
	}
	if svcCtx.TotalSamples < 3 {
		t.Errorf("total samples = %d, want >= 3", svcCtx.TotalSamples)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("app.Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("app.Run did not return after cancel")
	}
}

func serverURL(app *Application) string {
	return "http://" + app.cfg.HTTP.ListenAddr + "/v1/ingest"
}
