// Package ndjson reads write operations from newline-delimited JSON, one
// operation per line:
//
//	{"op":"index","index":"orders","id":"o-1","doc":{"total":3}}
//	{"op":"delete","index":"orders","id":"o-2"}
//
// "op" defaults to index and "index" to the source's default index.
package ndjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

// MaxLineSize bounds a single line.
const MaxLineSize = 16 << 20

type line struct {
	Op    string          `json:"op"`
	Index string          `json:"index"`
	ID    string          `json:"id"`
	Doc   json.RawMessage `json:"doc"`
}

// Source implements ports.Source over a stream. Lines that do not describe
// a valid operation are reported to the handler as permanent failures and
// skipped.
type Source struct {
	name         string
	defaultIndex string
	scanner      *bufio.Scanner
	closer       io.Closer
	invalid      ports.ResultHandler
	logger       ports.Logger
	lineNo       int64
	skipped      int
}

var _ ports.Source = (*Source)(nil)

// NewSource creates a source reading r. name becomes the origin topic of
// every operation and line numbers their offsets. invalid may be nil.
func NewSource(name string, r io.Reader, defaultIndex string, invalid ports.ResultHandler, logger ports.Logger) *Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineSize)
	s := &Source{
		name:         name,
		defaultIndex: defaultIndex,
		scanner:      sc,
		invalid:      invalid,
		logger:       logger,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next returns the next valid operation, or io.EOF at end of input.
func (s *Source) Next(ctx context.Context) (domain.WriteOperation, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.WriteOperation{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return domain.WriteOperation{}, errors.Wrapf(err, "read %s", s.name)
			}
			return domain.WriteOperation{}, io.EOF
		}
		s.lineNo++

		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		op, err := s.parse(raw)
		if err == nil {
			return op, nil
		}
		s.skipped++
		s.logger.Warn("skipping invalid line",
			ports.String("source", s.name),
			ports.Int64("line", s.lineNo),
			ports.Err(err),
		)
		if s.invalid != nil {
			op.Payload = append([]byte(nil), raw...)
			s.invalid.OnOutcome(op, domain.Permanent(0, err.Error(), err))
		}
	}
}

func (s *Source) parse(raw []byte) (domain.WriteOperation, error) {
	op := domain.WriteOperation{
		Origin: domain.Identity{Topic: s.name, Offset: s.lineNo},
	}

	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return op, errors.Wrap(err, "decode line")
	}

	kind, err := domain.ParseOpKind(l.Op)
	if err != nil {
		return op, err
	}
	op.Kind = kind
	op.DocID = l.ID
	op.Index = l.Index
	if op.Index == "" {
		op.Index = s.defaultIndex
	}
	if kind != domain.OpDelete && len(l.Doc) > 0 && !bytes.Equal(l.Doc, []byte("null")) {
		op.Payload = append([]byte(nil), l.Doc...)
	}
	return op, op.Validate()
}

// Skipped returns the number of invalid lines seen so far.
func (s *Source) Skipped() int {
	return s.skipped
}

// Close closes the underlying reader if it is closable.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
