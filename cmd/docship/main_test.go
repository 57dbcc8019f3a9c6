package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/docship/internal/cliconfig"
	"github.com/bft-labs/docship/pkg/docship"
	"github.com/bft-labs/docship/pkg/log"
)

// fakeCluster acknowledges every bulk action and rejects documents whose
// id starts with "bad".
func fakeCluster(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = io.WriteString(w, `{"name":"n1","cluster_name":"orders","version":{"number":"8.15.0","distribution":"elasticsearch"}}`)
			return
		}

		var items []string
		errs := false
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var head map[string]struct {
				ID string `json:"_id"`
			}
			if json.Unmarshal(bytes.TrimSpace(sc.Bytes()), &head) != nil {
				continue
			}
			for action, meta := range head {
				if strings.HasPrefix(meta.ID, "bad") {
					errs = true
					items = append(items, fmt.Sprintf(`{%q:{"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}}`, action))
				} else {
					items = append(items, fmt.Sprintf(`{%q:{"status":201}}`, action))
				}
				if action != "delete" {
					sc.Scan()
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"errors":%t,"items":[%s]}`, errs, strings.Join(items, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCLI(url string) *cli {
	cfg := cliconfig.DefaultConfig()
	cfg.URLs = []string{url}
	cfg.Index = "logs"
	return &cli{cfg: cfg, logger: log.NewZerologAdapter(log.WithOutput(io.Discard))}
}

func TestCheck(t *testing.T) {
	srv := fakeCluster(t)
	c := testCLI(srv.URL)

	var out bytes.Buffer
	require.NoError(t, c.check(&out))

	assert.Contains(t, out.String(), "orders")
	assert.Contains(t, out.String(), "elasticsearch 8.15.0")
	assert.Contains(t, out.String(), srv.URL)
}

func TestCheck_Unreachable(t *testing.T) {
	srv := fakeCluster(t)
	url := srv.URL
	srv.Close()

	c := testCLI(url)
	c.cfg.ConnectionRetries = 1

	var out bytes.Buffer
	assert.Error(t, c.check(&out))
}

func TestSend(t *testing.T) {
	srv := fakeCluster(t)
	c := testCLI(srv.URL)

	in := strings.NewReader(`{"op":"index","id":"1","doc":{"msg":"a"}}
{"op":"upsert","id":"1","doc":{"level":"warn"}}

{"op":"delete","id":"2"}
`)
	var out bytes.Buffer
	require.NoError(t, c.send(in, "ops.ndjson", &out))
	assert.Contains(t, out.String(), "3 submitted, 3 succeeded, 0 failed, 0 lines skipped")
}

func TestSend_Failures(t *testing.T) {
	srv := fakeCluster(t)
	c := testCLI(srv.URL)

	in := strings.NewReader(`{"op":"index","id":"1","doc":{"msg":"a"}}
{"op":"index","id":"bad-1","doc":{"msg":"b"}}
not json
`)
	var out bytes.Buffer
	err := c.send(in, "ops.ndjson", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 operations failed")
	assert.Contains(t, out.String(), "2 submitted, 1 succeeded, 1 failed, 1 lines skipped")
}

func TestSummary(t *testing.T) {
	s := &summary{logger: log.NewNoopLogger()}
	op := docship.WriteOperation{Index: "logs", DocID: "1"}

	s.OnOutcome(op, docship.Outcome{Class: docship.OutcomeSuccess, Status: 201})
	s.OnOutcome(op, docship.Outcome{Class: docship.OutcomePermanent, Status: 400, Reason: "mapper_parsing_exception"})
	s.OnOutcome(op, docship.Outcome{Class: docship.OutcomeSuccess, Status: 200})

	assert.Equal(t, int64(2), s.succeeded.Load())
	assert.Equal(t, int64(1), s.failed.Load())
}
