package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hl-grid-bot/internal/observer"

	"go.uber.org/zap"
)

type fakeRunner struct {
	done chan struct{}
	once sync.Once
}

func (f *fakeRunner) Run(context.Context) error {
	<-f.done
	return nil
}

func (f *fakeRunner) Stop() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *observer.Registry) {
	t.Helper()
	factory := func(context.Context, string) (observer.Runner, error) {
		return &fakeRunner{done: make(chan struct{})}, nil
	}
	registry := observer.NewRegistry(factory, nil, zap.NewNop())
	t.Cleanup(registry.StopAll)
	server := httptest.NewServer(NewServer(registry, zap.NewNop(), token, nil).Router())
	t.Cleanup(server.Close)
	return server, registry
}

func startObserver(t *testing.T, server *httptest.Server, address string) (string, *http.Response) {
	t.Helper()
	resp, err := http.Post(server.URL+"/observers/", "application/json",
		strings.NewReader(`{"address":"`+address+`"}`))
	if err != nil {
		t.Fatalf("start request: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body["id"], resp
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, "")
	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStartAndConflict(t *testing.T) {
	server, _ := newTestServer(t, "")

	id, resp := startObserver(t, server, "0xabc")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if id == "" {
		t.Fatal("expected observer id in response")
	}

	_, resp = startObserver(t, server, "0xabc")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate address, got %d", resp.StatusCode)
	}
}

func TestStartValidation(t *testing.T) {
	server, _ := newTestServer(t, "")
	resp, err := http.Post(server.URL+"/observers/", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing address, got %d", resp.StatusCode)
	}
}

func TestStopAndStatus(t *testing.T) {
	server, _ := newTestServer(t, "")
	id, _ := startObserver(t, server, "0xabc")

	resp, err := http.Post(server.URL+"/observers/"+id+"/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("stop request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/observers/" + id)
	if err != nil {
		t.Fatalf("status request: %v", err)
	}
	defer resp.Body.Close()
	var info observer.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if info.Status != observer.StatusStopped {
		t.Fatalf("expected stopped, got %s", info.Status)
	}

	resp, err = http.Post(server.URL+"/observers/missing/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("stop missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDelete(t *testing.T) {
	server, registry := newTestServer(t, "")
	id, _ := startObserver(t, server, "0xabc")

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/observers/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if entries := registry.List(); len(entries) != 0 {
		t.Fatalf("expected empty registry, got %d entries", len(entries))
	}
}

func TestList(t *testing.T) {
	server, _ := newTestServer(t, "")
	startObserver(t, server, "0xabc")
	startObserver(t, server, "0xdef")

	resp, err := http.Get(server.URL + "/observers/")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Observers []observer.Info `json:"observers"`
		Active    int             `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Observers) != 2 || body.Active != 2 {
		t.Fatalf("expected 2 running observers, got %+v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(t, "secret")

	resp, err := http.Get(server.URL + "/observers/")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/observers/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must stay open, got %d", resp.StatusCode)
	}
}
