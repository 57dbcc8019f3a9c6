package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// bulkAction is one action parsed by the fake cluster.
type bulkAction struct {
	Action string
	Index  string
	ID     string
	Source json.RawMessage
}

// fakeCluster answers _bulk requests with per-action statuses chosen by respond.
type fakeCluster struct {
	t       *testing.T
	mu      sync.Mutex
	calls   int
	headers []http.Header
	actions [][]bulkAction
	respond func(call int, a bulkAction) (status int, errType string)
	status  int // whole-request status override when non-zero
	raw     string
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		_, _ = io.WriteString(w, `{"name":"node-1","cluster_name":"docship-test","version":{"number":"8.13.0"}}`)
		return
	}

	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		require.NoError(c.t, err)
		body = zr
	}
	actions := parseBulk(c.t, body)

	c.mu.Lock()
	call := c.calls
	c.calls++
	c.headers = append(c.headers, r.Header.Clone())
	c.actions = append(c.actions, actions)
	c.mu.Unlock()

	if c.status != 0 {
		w.WriteHeader(c.status)
		_, _ = io.WriteString(w, `{"error":{"type":"cluster_block_exception","reason":"blocked"},"status":`+fmt.Sprint(c.status)+`}`)
		return
	}
	if c.raw != "" {
		_, _ = io.WriteString(w, c.raw)
		return
	}

	type itemResp struct {
		Index  string      `json:"_index"`
		ID     string      `json:"_id"`
		Status int         `json:"status"`
		Error  interface{} `json:"error,omitempty"`
	}
	resp := struct {
		Errors bool                  `json:"errors"`
		Items  []map[string]itemResp `json:"items"`
	}{}
	for _, a := range actions {
		status, errType := 201, ""
		if c.respond != nil {
			status, errType = c.respond(call, a)
		}
		ir := itemResp{Index: a.Index, ID: a.ID, Status: status}
		if errType != "" {
			resp.Errors = true
			ir.Error = map[string]string{"type": errType, "reason": "injected"}
		}
		resp.Items = append(resp.Items, map[string]itemResp{a.Action: ir})
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(c.t, json.NewEncoder(w).Encode(resp))
}

func parseBulk(t *testing.T, r io.Reader) []bulkAction {
	var out []bulkAction
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<24)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var head map[string]struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		}
		require.NoError(t, json.Unmarshal(line, &head))
		for action, meta := range head {
			a := bulkAction{Action: action, Index: meta.Index, ID: meta.ID}
			if action != "delete" {
				require.True(t, sc.Scan(), "missing source line")
				a.Source = append(json.RawMessage{}, sc.Bytes()...)
			}
			out = append(out, a)
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func (c *fakeCluster) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
