package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dashboard/api/internal/bg"
	"dashboard/api/internal/dashboard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.add(recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(body)})
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return New(server.URL+"/", zerolog.Nop()), rec
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(req recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func TestLoadFound(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"enabledWidgets":["clock-1"]}`))
	})

	raw, found, err := client.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"enabledWidgets":["clock-1"]}`, string(raw))
	requests := rec.all()
	require.Len(t, requests, 1)
	assert.Equal(t, recordedRequest{Method: http.MethodGet, Path: "/api/config/sess-1"}, requests[0])
}

func TestLoadNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","error":"Not found"}`))
	})

	raw, found, err := client.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, raw)
}

func TestLoadServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"SERVER_ERROR","error":"Server error"}`))
	})

	_, _, err := client.Load(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_ERROR")
}

func TestSaveSendsFullDocument(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	doc := dashboard.DefaultDocument()
	doc.Revision = 3
	require.NoError(t, client.Save(context.Background(), "sess-1", doc))

	requests := rec.all()
	require.Len(t, requests, 1)
	got := requests[0]
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/config/sess-1", got.Path)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(got.Body), &wire))
	for _, key := range []string{"tabs", "activeTabId", "revision", "layouts", "enabledWidgets", "widgetInstances", "widgetSettings"} {
		assert.Contains(t, wire, key)
	}
	assert.JSONEq(t, `3`, string(wire["revision"]))
}

func TestSaveActiveTab(t *testing.T) {
	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.SaveActiveTab(context.Background(), "sess-1", "work", 8))

	requests := rec.all()
	require.Len(t, requests, 1)
	got := requests[0]
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/config/sess-1/active-tab", got.Path)
	assert.JSONEq(t, `{"activeTabId":"work","revision":8}`, got.Body)
}

func TestSaveConflictIsStale(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := client.Save(context.Background(), "sess-1", dashboard.DefaultDocument())
	assert.ErrorIs(t, err, ErrStaleRevision)

	err = client.SaveActiveTab(context.Background(), "sess-1", "default", 1)
	assert.ErrorIs(t, err, ErrStaleRevision)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := New(server.URL, zerolog.Nop(), WithTimeout(50*time.Millisecond))
	_, _, err := client.Load(context.Background(), "sess-1")
	assert.Error(t, err)
}

func TestEngineRoundTrip(t *testing.T) {
	var (
		mu     sync.Mutex
		stored []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && stored == nil:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet:
			_, _ = w.Write(stored)
		case r.Method == http.MethodPut && r.URL.Path == "/api/config/sess-1":
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)
	client := New(server.URL, zerolog.Nop())

	newEngine := func() *dashboard.Engine {
		return dashboard.NewEngine(dashboard.Options{
			SessionID: "sess-1",
			Remote:    client,
			Runner:    bg.Sync{},
			Logger:    zerolog.Nop(),
		})
	}

	engine := newEngine()
	engine.Load(context.Background())
	id := engine.AddWidget("weather", dashboard.SizeExpanded, dashboard.Size{})

	reloaded := newEngine()
	reloaded.Load(context.Background())
	assert.Equal(t, engine.Snapshot(), reloaded.Snapshot())
	entry, ok := reloaded.ActiveTab().Layout(id)
	require.True(t, ok)
	assert.Equal(t, dashboard.SizeExpanded, entry.SizeMode)
}
