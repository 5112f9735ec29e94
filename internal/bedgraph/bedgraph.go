// Package bedgraph is the ambient record source this module's write
// pipeline is demonstrated and tested against: a line scanner over
// bedGraph text (`chrom start end value`) and a chrom.sizes parser.
//
// Neither is the hard core spec.md scopes out of this repo (bedGraph
// parsing is explicitly listed as an external collaborator in spec.md
// §1) -- they exist so cmd/bigwigwrite and the integration tests have a
// real model.Record source to drive internal/demux with. The scanning
// style -- a bufio.Scanner read one line per call, with no record
// lookahead of its own -- mirrors the teacher's block scanner (scanner.go's
// Scan/Err/Block trio), simplified because bedGraph has no analogue of
// bzip2's bit-aligned magic-number search: finding the next record is
// just finding the next newline.
package bedgraph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/model"
)

// Scanner reads chrom/start/end/value tuples from bedGraph text, one
// line per record, and implements internal/demux.Source.
type Scanner struct {
	sc      *bufio.Scanner
	line    int
	err     error
	lastChr string
}

// NewScanner returns a Scanner reading from rd.
func NewScanner(rd io.Reader) *Scanner {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Scanner{sc: sc}
}

// Next implements internal/demux.Source. It returns io.EOF once the
// input is exhausted.
func (s *Scanner) Next() (string, model.Record, error) {
	if s.err != nil {
		return "", model.Record{}, s.err
	}
	for s.sc.Scan() {
		s.line++
		line := strings.TrimSpace(s.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") {
			continue
		}
		chrom, rec, err := s.parseLine(line)
		if err != nil {
			s.err = err
			return "", model.Record{}, err
		}
		return chrom, rec, nil
	}
	if err := s.sc.Err(); err != nil {
		s.err = bwerr.Wrap(bwerr.IoError, err, "bedgraph: scan", "line", s.line)
		return "", model.Record{}, s.err
	}
	s.err = io.EOF
	return "", model.Record{}, io.EOF
}

func (s *Scanner) parseLine(line string) (string, model.Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return "", model.Record{}, bwerr.Invalidf("bedgraph: line %d: want 4 fields (chrom start end value), got %d", s.line, len(fields))
	}
	start, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", model.Record{}, bwerr.Invalidf("bedgraph: line %d: bad start %q: %v", s.line, fields[1], err)
	}
	end, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return "", model.Record{}, bwerr.Invalidf("bedgraph: line %d: bad end %q: %v", s.line, fields[2], err)
	}
	value, err := strconv.ParseFloat(fields[3], 32)
	if err != nil {
		return "", model.Record{}, bwerr.Invalidf("bedgraph: line %d: bad value %q: %v", s.line, fields[3], err)
	}
	s.lastChr = fields[0]
	return fields[0], model.Record{Start: uint32(start), End: uint32(end), Value: float32(value)}, nil
}

// ParseChromSizes parses a chrom.sizes file: whitespace-separated
// "name size" lines (spec.md §6).
func ParseChromSizes(rd io.Reader) (map[string]uint32, error) {
	sc := bufio.NewScanner(rd)
	out := map[string]uint32{}
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, bwerr.Invalidf("chrom.sizes: line %d: want at least 2 fields, got %d", line, len(fields))
		}
		size, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, bwerr.Invalidf("chrom.sizes: line %d: bad size %q: %v", line, fields[1], err)
		}
		out[fields[0]] = uint32(size)
	}
	if err := sc.Err(); err != nil {
		return nil, bwerr.Wrap(bwerr.IoError, err, "chrom.sizes: scan")
	}
	return out, nil
}

// Err returns a human-readable description of s's last error together
// with the chromosome being scanned when it occurred, per spec.md §7's
// "identifying the kind and location" requirement.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	if s.err != nil && s.lastChr != "" {
		return fmt.Errorf("%w (last chromosome %s, line %d)", s.err, s.lastChr, s.line)
	}
	return s.err
}
