package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/bft-labs/docship/internal/domain"
)

const ndjsonContentType = "application/x-ndjson"

type actionMeta struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	Version     *int64 `json:"version,omitempty"`
	VersionType string `json:"version_type,omitempty"`
}

type upsertBody struct {
	Doc         json.RawMessage `json:"doc"`
	DocAsUpsert bool            `json:"doc_as_upsert"`
}

// actionName is the bulk action an operation is sent as.
func actionName(k domain.OpKind) string {
	switch k {
	case domain.OpUpsert:
		return "update"
	case domain.OpDelete:
		return "delete"
	default:
		return "index"
	}
}

// encodeBulk writes the NDJSON body for items. Items whose payload is not a
// JSON document are left out and reported in rejected, keyed by position.
func encodeBulk(items []domain.Item, externalVersioning bool) (body []byte, sent []int, rejected map[int]error) {
	var buf bytes.Buffer
	for i, it := range items {
		if err := encodeOne(&buf, it.Op, externalVersioning); err != nil {
			if rejected == nil {
				rejected = make(map[int]error)
			}
			rejected[i] = err
			continue
		}
		sent = append(sent, i)
	}
	return buf.Bytes(), sent, rejected
}

func encodeOne(buf *bytes.Buffer, op domain.WriteOperation, externalVersioning bool) error {
	var source []byte
	switch op.Kind {
	case domain.OpIndex:
		doc, err := compactDocument(op.Payload)
		if err != nil {
			return err
		}
		source = doc
	case domain.OpUpsert:
		doc, err := compactDocument(op.Payload)
		if err != nil {
			return err
		}
		source, err = json.Marshal(upsertBody{Doc: doc, DocAsUpsert: true})
		if err != nil {
			return errors.WithStack(err)
		}
	case domain.OpDelete:
	default:
		return errors.Newf("unsupported operation kind %d", op.Kind)
	}

	meta := actionMeta{Index: op.Index, ID: op.DocID}
	// external versions are rejected by the store on update actions
	if externalVersioning && op.Kind != domain.OpUpsert {
		v := op.Origin.Offset
		meta.Version = &v
		meta.VersionType = "external"
	}
	action, err := json.Marshal(map[string]actionMeta{actionName(op.Kind): meta})
	if err != nil {
		return errors.WithStack(err)
	}

	buf.Write(action)
	buf.WriteByte('\n')
	if source != nil {
		buf.Write(source)
		buf.WriteByte('\n')
	}
	return nil
}

// compactDocument checks that payload is a JSON object and strips newlines.
func compactDocument(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("payload is not a JSON object")
	}
	var out bytes.Buffer
	if err := json.Compact(&out, trimmed); err != nil {
		return nil, errors.Wrap(err, "payload is not valid JSON")
	}
	return out.Bytes(), nil
}

type bulkResponse struct {
	Took   int                   `json:"took"`
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Result string          `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type bulkError struct {
	Type     string     `json:"type"`
	Reason   string     `json:"reason"`
	CausedBy *bulkError `json:"caused_by"`
}

// reason renders an item or request error as "type: reason".
func reason(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var e bulkError
	if err := json.Unmarshal(raw, &e); err != nil {
		return string(raw)
	}
	return e.String()
}

func (e *bulkError) String() string {
	var b strings.Builder
	b.WriteString(e.Type)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.CausedBy != nil {
		b.WriteString(" (caused by ")
		b.WriteString(e.CausedBy.String())
		b.WriteString(")")
	}
	return b.String()
}

// decodeBulk parses a bulk response expected to carry n items.
func decodeBulk(body []byte, n int) ([]bulkItem, error) {
	var resp bulkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.ProtocolError{Reason: "malformed bulk response", Err: err}
	}
	if len(resp.Items) != n {
		return nil, &domain.ProtocolError{Reason: fmt.Sprintf("bulk response has %d items, request had %d", len(resp.Items), n)}
	}
	items := make([]bulkItem, n)
	for i, entry := range resp.Items {
		if len(entry) != 1 {
			return nil, &domain.ProtocolError{Reason: fmt.Sprintf("bulk response item %d has %d actions", i, len(entry))}
		}
		for _, it := range entry {
			items[i] = it
		}
	}
	return items, nil
}

// errorReason extracts the error of a whole-request failure body.
func errorReason(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 {
		return reason(env.Error)
	}
	return truncate(strings.TrimSpace(string(body)), maxReasonBytes)
}

const maxReasonBytes = 256

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
