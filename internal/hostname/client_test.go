package hostname

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	known      map[string]bool
	authCalls  atomic.Int32
	lookups    atomic.Int32
	expireOnce atomic.Bool

	mu       sync.Mutex
	lastBody distributionRequest
}

func (f *fakeRegistry) last() distributionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(authPath, func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.authCalls.Add(1)
		_ = json.NewEncoder(w).Encode(authResponse{Token: "tok-" + string(rune('0'+n))})
	})
	mux.HandleFunc(distributionPath, func(w http.ResponseWriter, r *http.Request) {
		f.lookups.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.expireOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req distributionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastBody = req
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(distributionResponse{Status: f.known[req.Irradiadora]})
	})
	return mux
}

func newTestClient(t *testing.T, reg *fakeRegistry, password string) *Client {
	t.Helper()
	srv := httptest.NewServer(reg.handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", Username: "auditor", Password: password})
	require.NoError(t, err)
	return c
}

func TestValidateHostname(t *testing.T) {
	reg := &fakeRegistry{known: map[string]bool{"BRSPNB001": true}}
	c := newTestClient(t, reg, "secret")

	ok, err := c.ValidateHostname(context.Background(), "BRSPNB001", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", reg.last().MachineID)
	assert.Equal(t, defaultDomain, reg.last().Domain)
	assert.Equal(t, "auditor", reg.last().User)

	ok, err = c.ValidateHostname(context.Background(), "UNKNOWN01", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "UNKNOWN01", reg.last().MachineID, "hostname stands in for a missing matricula")

	assert.Equal(t, int32(1), reg.authCalls.Load(), "token is cached")
}

func TestValidateHostnameRefreshesToken(t *testing.T) {
	reg := &fakeRegistry{known: map[string]bool{"H1": true}}
	c := newTestClient(t, reg, "secret")

	_, err := c.ValidateHostname(context.Background(), "H1", "")
	require.NoError(t, err)

	reg.expireOnce.Store(true)
	ok, err := c.ValidateHostname(context.Background(), "H1", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), reg.authCalls.Load())
}

func TestValidateHostnameBadCredentials(t *testing.T) {
	reg := &fakeRegistry{}
	c := newTestClient(t, reg, "wrong")

	ok, err := c.ValidateHostname(context.Background(), "H1", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, reg.lookups.Load())
}

func TestValidateHostnameEmpty(t *testing.T) {
	reg := &fakeRegistry{}
	c := newTestClient(t, reg, "secret")

	ok, err := c.ValidateHostname(context.Background(), "  ", "123")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, reg.authCalls.Load())
}

func TestValidateHostnameServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == authPath {
			_ = json.NewEncoder(w).Encode(authResponse{Token: "t"})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ok, err := c.ValidateHostname(context.Background(), "H1", "")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestValidateHostnameHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.ValidateHostname(ctx, "H1", "")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
