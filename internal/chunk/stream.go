package chunk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Writer streams documents into an indented JSON array without holding more
// than one document in memory.
type Writer struct {
	bw     *bufio.Writer
	count  int
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write appends doc to the array.
func (w *Writer) Write(doc Document) error {
	if w.closed {
		return errors.New("chunk: write on closed writer")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "  ", "  "); err != nil {
		return err
	}
	sep := ",\n  "
	if w.count == 0 {
		sep = "[\n  "
	}
	if _, err := w.bw.WriteString(sep); err != nil {
		return err
	}
	if _, err := indented.WriteTo(w.bw); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of documents written.
func (w *Writer) Count() int { return w.count }

// Close terminates the array and flushes. It does not close the underlying
// writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	tail := "\n]\n"
	if w.count == 0 {
		tail = "[]\n"
	}
	if _, err := w.bw.WriteString(tail); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Reader decodes a JSON array of documents one element at a time.
type Reader struct {
	dec     *json.Decoder
	started bool
	done    bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next document or io.EOF after the last one.
func (r *Reader) Next() (Document, error) {
	if r.done {
		return Document{}, io.EOF
	}
	if !r.started {
		tok, err := r.dec.Token()
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return Document{}, fmt.Errorf("%w: expected array", ErrMalformedDocument)
		}
		r.started = true
	}
	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil {
			return Document{}, err
		}
		r.done = true
		return Document{}, io.EOF
	}
	var doc Document
	if err := r.dec.Decode(&doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// ReadAll decodes every document of r.
func ReadAll(r io.Reader) ([]Document, error) {
	cr := NewReader(r)
	var docs []Document
	for {
		doc, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// LoadFile reads a chunk file written by Writer.
func LoadFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(f)
}

// EachInFile streams the documents of path into fn.
func EachInFile(path string, fn func(Document) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cr := NewReader(f)
	for {
		doc, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

// Batch receives the documents of one run and is committed or rolled back
// as a whole.
type Batch interface {
	Write(ctx context.Context, doc Document) error
	Commit() error
	Rollback() error
}
