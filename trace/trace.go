// Package trace provides memory access traces: a line-oriented text format,
// a SQLite trace store, and synthetic workload generators.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Access is one entry of a memory access trace.
type Access struct {
	Addr    uint64
	PC      uint64
	HasPC   bool
	IsWrite bool
}

// Parse reads a text trace. Each non-empty line holds an operation (R or W),
// an address and an optional PC. Numbers are decimal or 0x-prefixed hex.
// Text after '#' is ignored.
//
//	R 0x1000 0x400
//	W 4096
func Parse(r io.Reader) ([]Access, error) {
	var accesses []Access

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		access, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		accesses = append(accesses, access)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return accesses, nil
}

func parseFields(fields []string) (Access, error) {
	if len(fields) < 2 || len(fields) > 3 {
		return Access{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}

	var access Access
	switch strings.ToUpper(fields[0]) {
	case "R":
	case "W":
		access.IsWrite = true
	default:
		return Access{}, fmt.Errorf("unknown operation %q", fields[0])
	}

	addr, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return Access{}, fmt.Errorf("invalid address %q: %w", fields[1], err)
	}
	access.Addr = addr

	if len(fields) == 3 {
		pc, err := strconv.ParseUint(fields[2], 0, 64)
		if err != nil {
			return Access{}, fmt.Errorf("invalid pc %q: %w", fields[2], err)
		}
		access.PC = pc
		access.HasPC = true
	}

	return access, nil
}

// LoadFile parses the text trace at path.
func LoadFile(path string) ([]Access, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Write emits accesses in the text format accepted by Parse.
func Write(w io.Writer, accesses []Access) error {
	bw := bufio.NewWriter(w)
	for _, a := range accesses {
		op := "R"
		if a.IsWrite {
			op = "W"
		}

		var err error
		if a.HasPC {
			_, err = fmt.Fprintf(bw, "%s %#x %#x\n", op, a.Addr, a.PC)
		} else {
			_, err = fmt.Fprintf(bw, "%s %#x\n", op, a.Addr)
		}
		if err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}
