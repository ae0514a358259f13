package powerlog

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultRotatedPrefix is the base name of the device's rotated power logs.
const DefaultRotatedPrefix = "PowerlogFile"

var ErrNoRotatedLogs = errors.New("powerlog: no rotated log files found")

// Discover lists the rotated segments of prefix in dir in merge order:
// ascending rotation counter, with the live unsuffixed file last. A compressed
// segment is skipped when its uncompressed twin is present.
func Discover(dir, prefix string) ([]string, error) {
	if prefix == "" {
		prefix = DefaultRotatedPrefix
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}
	type segment struct {
		name   string
		suffix int
		live   bool
	}
	var segs []segment
	for name := range present {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, ".gz") && present[strings.TrimSuffix(name, ".gz")] {
			continue
		}
		suffix, live := rotationSuffix(strings.TrimSuffix(name, ".gz"))
		segs = append(segs, segment{name: name, suffix: suffix, live: live})
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRotatedLogs, dir)
	}
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].live != segs[j].live {
			return !segs[i].live
		}
		if segs[i].suffix != segs[j].suffix {
			return segs[i].suffix < segs[j].suffix
		}
		return segs[i].name < segs[j].name
	})
	paths := make([]string, len(segs))
	for i, s := range segs {
		paths[i] = filepath.Join(dir, s.name)
	}
	return paths, nil
}

// rotationSuffix extracts the trailing ".N" counter. Names without one are the
// live file.
func rotationSuffix(name string) (int, bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return 0, true
	}
	n, err := strconv.Atoi(name[dot+1:])
	if err != nil {
		return 0, true
	}
	return n, false
}

// Open opens a single log, transparently decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	ferr := g.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}

// OpenMerged concatenates paths into one stream. Each segment is terminated
// with a newline so the last line of one file never joins the first line of
// the next.
func OpenMerged(paths []string) (io.ReadCloser, error) {
	if len(paths) == 0 {
		return nil, ErrNoRotatedLogs
	}
	m := &merged{paths: paths}
	return m, nil
}

type merged struct {
	paths   []string
	cur     io.ReadCloser
	lastNL  bool
	pending bool
}

func (m *merged) Read(p []byte) (int, error) {
	for {
		if m.pending {
			if len(p) == 0 {
				return 0, nil
			}
			p[0] = '\n'
			m.pending = false
			m.lastNL = true
			return 1, nil
		}
		if m.cur == nil {
			if len(m.paths) == 0 {
				return 0, io.EOF
			}
			rc, err := Open(m.paths[0])
			if err != nil {
				return 0, err
			}
			m.paths = m.paths[1:]
			m.cur = rc
			m.lastNL = true
		}
		n, err := m.cur.Read(p)
		if n > 0 {
			m.lastNL = p[n-1] == '\n'
		}
		if errors.Is(err, io.EOF) {
			cerr := m.cur.Close()
			m.cur = nil
			if cerr != nil {
				return n, cerr
			}
			if !m.lastNL {
				m.pending = true
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (m *merged) Close() error {
	if m.cur == nil {
		return nil
	}
	err := m.cur.Close()
	m.cur = nil
	return err
}
