// Copyright 2026 geyser Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package encoding stores documents as BSON, a self-describing binary format
// which carries field names. Readers decode missing fields as zero values, so
// files written before a field was added stay readable.
package encoding

import (
	"io"
	"os"

	"github.com/google/renameio/v2"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	// ErrIO is attached to errors raised while opening, reading or writing files.
	ErrIO = errors.ConstError("i/o error")
	// ErrDecode is attached to errors raised by malformed or foreign file contents.
	ErrDecode = errors.ConstError("decode error")
)

// Header identifies the content and schema version of a document.
// Embed it into documents with `bson:",inline"`.
type Header struct {
	Format string `bson:"format"`
	Schema int    `bson:"schema"`
}

// NewHeader creates a header.
func NewHeader(format string, schema int) Header {
	return Header{Format: format, Schema: schema}
}

// Check accepts documents of the same format written by this or any prior
// schema version.
func (h Header) Check(format string, schema int) error {
	if h.Format != format {
		return errors.WithType(errors.Errorf("expect format %q but got %q", format, h.Format), ErrDecode)
	}
	if h.Schema < 1 || h.Schema > schema {
		return errors.WithType(errors.Errorf("unsupported %s schema %d (max %d)", format, h.Schema, schema), ErrDecode)
	}
	return nil
}

// Marshal writes a document to byte stream.
func Marshal(w io.Writer, v any) error {
	data, err := bson.Marshal(v)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = w.Write(data); err != nil {
		return errors.WithType(errors.Trace(err), ErrIO)
	}
	return nil
}

// Unmarshal reads a document from byte stream.
func Unmarshal(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.WithType(errors.Trace(err), ErrIO)
	}
	return decode(data, v)
}

// WriteFile replaces the file at path with the encoded document. The file is
// written to a temporary file first and renamed over the target, so readers
// never see a partial file.
func WriteFile(path string, v any) error {
	data, err := bson.Marshal(v)
	if err != nil {
		return errors.Trace(err)
	}
	if err = renameio.WriteFile(path, data, 0644); err != nil {
		return errors.WithType(errors.Annotatef(err, "write %s", path), ErrIO)
	}
	return nil
}

// ReadFile decodes the document stored at path.
func ReadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithType(errors.Annotatef(err, "read %s", path), ErrIO)
	}
	if err = decode(data, v); err != nil {
		return errors.Annotate(err, path)
	}
	return nil
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return errors.WithType(errors.New("empty document"), ErrDecode)
	}
	if err := bson.Unmarshal(data, v); err != nil {
		return errors.WithType(errors.Trace(err), ErrDecode)
	}
	return nil
}

// Matrix is the encoded form of a dense row-major matrix.
type Matrix struct {
	Rows int       `bson:"rows"`
	Cols int       `bson:"cols"`
	Data []float64 `bson:"data"`
}

// NewMatrix flattens a matrix whose rows all have cols columns.
func NewMatrix(m [][]float64, cols int) Matrix {
	data := make([]float64, 0, len(m)*cols)
	for _, row := range m {
		data = append(data, row...)
	}
	return Matrix{Rows: len(m), Cols: cols, Data: data}
}

// Unflatten restores the rows of the matrix. The rows share one backing array.
func (m Matrix) Unflatten() ([][]float64, error) {
	if m.Rows < 0 || m.Cols < 0 || len(m.Data) != m.Rows*m.Cols {
		return nil, errors.WithType(errors.Errorf("matrix %dx%d holds %d values", m.Rows, m.Cols, len(m.Data)), ErrDecode)
	}
	rows := make([][]float64, m.Rows)
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	for i := range rows {
		rows[i] = data[i*m.Cols : (i+1)*m.Cols : (i+1)*m.Cols]
	}
	return rows, nil
}
