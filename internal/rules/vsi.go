package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SignalMap translates between signal names and their numeric wire IDs.
// Loaded from a .vsi file: the first non-blank line is the format version,
// each following line is "name number".
type SignalMap struct {
	Version float64
	toNum   map[string]uint32
	toName  map[uint32]string
}

// LoadSignalMap reads a .vsi signal-number mapping file.
func LoadSignalMap(path string) (*SignalMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signal number file: %w", err)
	}
	defer f.Close()
	return ParseSignalMap(path, f)
}

// ParseSignalMap parses .vsi content. The path is used for error reporting.
func ParseSignalMap(path string, r io.Reader) (*SignalMap, error) {
	m := &SignalMap{
		Version: -1,
		toNum:   make(map[string]uint32),
		toName:  make(map[uint32]string),
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if m.Version < 0 {
			v, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return nil, &LoadError{Path: path, Line: lineNo,
					Msg: fmt.Sprintf("failed to parse version number: %v", err)}
			}
			m.Version = v
			continue
		}

		name, numText, ok := strings.Cut(line, " ")
		if !ok {
			return nil, &LoadError{Path: path, Line: lineNo,
				Msg: fmt.Sprintf("malformed signal number line: %q", line)}
		}
		num, err := strconv.ParseUint(strings.TrimSpace(numText), 10, 32)
		if err != nil {
			return nil, &LoadError{Path: path, Line: lineNo,
				Msg: fmt.Sprintf("malformed signal number: %v", err)}
		}
		name = NormalizeName(strings.TrimSpace(name))
		m.toNum[name] = uint32(num)
		m.toName[uint32(num)] = name
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read signal number file: %w", err)
	}
	if m.Version < 0 {
		return nil, &LoadError{Path: path, Msg: "empty signal number file"}
	}
	return m, nil
}

// Num returns the numeric ID mapped to a signal name.
func (m *SignalMap) Num(name string) (uint32, bool) {
	num, ok := m.toNum[name]
	return num, ok
}

// Name returns the signal name mapped to a numeric ID.
func (m *SignalMap) Name(num uint32) (string, bool) {
	name, ok := m.toName[num]
	return name, ok
}

// Has reports whether the map knows the signal name.
func (m *SignalMap) Has(name string) bool {
	_, ok := m.toNum[name]
	return ok
}

// Len returns the number of mapped signals.
func (m *SignalMap) Len() int {
	return len(m.toNum)
}
