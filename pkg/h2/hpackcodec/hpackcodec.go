// Package hpackcodec wraps golang.org/x/net/http2/hpack for the reactor's
// HTTP/2 stack (spec.md's C2), grounded directly on the teacher's
// pkg/http2/converter.go Converter.EncodeHeaders/DecodeHeaders: a
// *hpack.Encoder writing into a reusable bytes.Buffer, and a *hpack.Decoder
// collecting fields with DecodeFull.
package hpackcodec

import (
	"bytes"
	"strings"

	"golang.org/x/net/http2/hpack"
)

// Codec holds the HPACK encoder/decoder pair for one HTTP/2 connection.
// A connection has exactly one Codec: HPACK's dynamic table is per-direction
// and per-connection, never per-stream.
type Codec struct {
	encoder *hpack.Encoder
	encBuf  bytes.Buffer
	decoder *hpack.Decoder
}

// New creates a Codec with the given HPACK dynamic table size (the
// connection's SETTINGS_HEADER_TABLE_SIZE).
func New(tableSize uint32) *Codec {
	c := &Codec{}
	c.encoder = hpack.NewEncoder(&c.encBuf)
	c.encoder.SetMaxDynamicTableSize(tableSize)
	c.decoder = hpack.NewDecoder(uint32(tableSize), nil)
	return c
}

// SetMaxDynamicTableSize updates the encoder's dynamic table cap, e.g. after
// receiving a peer SETTINGS_HEADER_TABLE_SIZE.
func (c *Codec) SetMaxDynamicTableSize(size uint32) {
	c.encoder.SetMaxDynamicTableSize(size)
}

// HeaderField is a name/value pair in wire order; pseudo-headers (":method"
// etc) must be written before regular headers per RFC 7541 §8.1.2.1.
type HeaderField struct {
	Name  string
	Value string
}

// EncodeResponse encodes a response header block: :status first, then the
// remaining fields in the order given.
func (c *Codec) EncodeResponse(status string, fields []HeaderField) ([]byte, error) {
	c.encBuf.Reset()
	if err := c.encoder.WriteField(hpack.HeaderField{Name: ":status", Value: status}); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := c.encoder.WriteField(hpack.HeaderField{Name: strings.ToLower(f.Name), Value: f.Value}); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), c.encBuf.Bytes()...), nil
}

// Decode decodes a concatenated HEADERS(+CONTINUATION) fragment into an
// ordered field list, preserving pseudo-header order for the caller to
// extract :method/:path/:scheme/:authority.
func (c *Codec) Decode(block []byte) ([]HeaderField, error) {
	fields, err := c.decoder.DecodeFull(block)
	if err != nil {
		return nil, err
	}
	out := make([]HeaderField, 0, len(fields))
	for _, f := range fields {
		out = append(out, HeaderField{Name: f.Name, Value: f.Value})
	}
	return out, nil
}

// Split separates a decoded field list into pseudo-headers (returned as a
// map keyed without the leading colon) and regular headers, mirroring the
// teacher's convention of stripping the ':' prefix when building its
// Request struct.
func Split(fields []HeaderField) (pseudo map[string]string, regular []HeaderField) {
	pseudo = make(map[string]string)
	for _, f := range fields {
		if strings.HasPrefix(f.Name, ":") {
			pseudo[strings.TrimPrefix(f.Name, ":")] = f.Value
			continue
		}
		regular = append(regular, f)
	}
	return pseudo, regular
}
