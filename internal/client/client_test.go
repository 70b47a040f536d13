package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEndpoint int

func (p staticEndpoint) Endpoint() int { return int(p) }

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newFormatServer(t *testing.T, hits *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/format/code", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		var req struct {
			Source string `json:"source"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("formatted:" + req.Source))
	})
	mux.HandleFunc("/format", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		var req struct {
			FilePath string `json:"filePath"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte("file:" + req.FilePath))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFormatCodeReturnsBody(t *testing.T) {
	var hits int32
	srv := newFormatServer(t, &hits)
	c := New(staticEndpoint(serverPort(t, srv)), Options{})

	out, err := c.FormatCode(context.Background(), "class A{}")
	require.NoError(t, err)
	assert.Equal(t, "formatted:class A{}", out)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFormatFileSendsPath(t *testing.T) {
	var hits int32
	srv := newFormatServer(t, &hits)
	c := New(staticEndpoint(serverPort(t, srv)), Options{})

	out, err := c.FormatFile(context.Background(), "/src/Test.java")
	require.NoError(t, err)
	assert.Equal(t, "file:/src/Test.java", out)
}

func TestConnectionRefusedMapsToServiceUnavailable(t *testing.T) {
	c := New(staticEndpoint(closedPort(t)), Options{})
	_, err := c.FormatCode(context.Background(), "class A{}")
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "not ready")
	assert.Contains(t, err.Error(), "hold")
	assert.NotContains(t, err.Error(), "refused")
}

func TestNon2xxMapsToServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(staticEndpoint(serverPort(t, srv)), Options{})
	_, err := c.FormatCode(context.Background(), "x")
	assert.Equal(t, ErrServiceUnavailable, err)
}

func TestNoRetryByDefault(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := New(staticEndpoint(serverPort(t, srv)), Options{})
	_, err := c.FormatCode(context.Background(), "x")
	require.ErrorIs(t, err, ErrServiceUnavailable)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestBoundedRetryWhenEnabled(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	c := New(staticEndpoint(serverPort(t, srv)), Options{MaxRetries: 3, RetryInterval: 5 * time.Millisecond})
	out, err := c.FormatCode(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestCancelledCallerStillCompletesSentRequest(t *testing.T) {
	release := make(chan struct{})
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
		close(done)
	}))
	defer srv.Close()
	c := New(staticEndpoint(serverPort(t, srv)), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan string, 1)
	go func() {
		out, _ := c.FormatCode(ctx, "x")
		result <- out
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server-side request did not complete")
	}
	assert.Equal(t, "late", <-result)
}

func TestCheckHealth(t *testing.T) {
	var hits int32
	srv := newFormatServer(t, &hits)
	c := New(staticEndpoint(0), Options{})
	assert.NoError(t, c.CheckHealth(context.Background(), serverPort(t, srv)))
	assert.Error(t, c.CheckHealth(context.Background(), closedPort(t)))
}
