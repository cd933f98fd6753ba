package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampfilter/internal/rule"
	"ampfilter/internal/ws"
)

func newTestServer(t *testing.T) (*httptest.Server, *rule.Store) {
	t.Helper()
	store := rule.NewStore()
	h := NewHandler(store, ws.NewHub(), func() Stats {
		return Stats{PacketsReceived: 42}
	})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func addRule(t *testing.T, srv *httptest.Server, text string) AddRuleResponse {
	t.Helper()
	body, _ := json.Marshal(AddRuleRequest{Rule: text})
	resp, err := http.Post(srv.URL+"/rules", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out AddRuleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAddRule(t *testing.T) {
	srv, store := newTestServer(t)

	out := addRule(t, srv, "Ia > 5")
	assert.Equal(t, 1, out.DeviceID)
	assert.Equal(t, "Ia > 5", out.Rule)
	assert.Equal(t, "Ia > 5", out.Normalized)
	assert.NotEmpty(t, out.Handle)
	assert.Equal(t, 1, store.Count(1))
}

func TestAddRuleInvalid(t *testing.T) {
	srv, store := newTestServer(t)

	cases := []string{"Ia >", "IA > 5", "Iz > 5", "Ia > -1", ""}
	for _, text := range cases {
		body, _ := json.Marshal(AddRuleRequest{Rule: text})
		resp, err := http.Post(srv.URL+"/rules", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "rule %q", text)
	}

	assert.Zero(t, store.Count(1), "rejected rules must not register")
}

func TestRemoveRuleIdempotent(t *testing.T) {
	srv, store := newTestServer(t)
	out := addRule(t, srv, "Ic = 8")

	url := fmt.Sprintf("%s/rules/%d/%s", srv.URL, out.DeviceID, out.Handle)
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, url, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, "attempt %d", i+1)
	}

	assert.Zero(t, store.Count(2))
}

func TestGetState(t *testing.T) {
	srv, store := newTestServer(t)
	out := addRule(t, srv, "If >= 10")

	resp, err := http.Get(fmt.Sprintf("%s/rules/%d/%s/state", srv.URL, out.DeviceID, out.Handle))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.False(t, state["active"])

	store.UpdateState(3, out.Handle, true)
	resp2, err := http.Get(fmt.Sprintf("%s/rules/%d/%s/state", srv.URL, out.DeviceID, out.Handle))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&state))
	assert.True(t, state["active"])
}

func TestGetStateUnknownHandle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rules/1/no-such-handle/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRules(t *testing.T) {
	srv, _ := newTestServer(t)
	addRule(t, srv, "Ia > 5")
	addRule(t, srv, "Ig < 20")

	resp, err := http.Get(srv.URL + "/rules")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string][]rule.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out["1"], 1)
	assert.Len(t, out["4"], 1)
	assert.Empty(t, out["2"])
}

func TestInvalidDeviceID(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/rules/0", "/rules/5", "/rules/abc"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "path %s", path)
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, uint64(42), stats.PacketsReceived)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
