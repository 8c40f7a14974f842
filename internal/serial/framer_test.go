package serial

import (
	"bytes"
	"strings"
	"testing"
)

// collect returns a framer plus the list of dispatched lines, copied at
// dispatch time since the callback slice aliases the accumulator.
func collect(capacity int) (*Framer, *[][]byte) {
	var lines [][]byte
	f := NewFramer(capacity, func(line []byte) {
		lines = append(lines, append([]byte(nil), line...))
	})
	return f, &lines
}

func TestFramerDispatchesSingleLine(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("PING\n"))

	if len(*lines) != 1 {
		t.Fatalf("dispatched %d lines, want 1", len(*lines))
	}
	if got := string((*lines)[0]); got != "PING" {
		t.Errorf("dispatched %q, want %q", got, "PING")
	}
	if f.Pending() != 0 {
		t.Errorf("pending = %d after dispatch, want 0", f.Pending())
	}
}

func TestFramerCarriageReturnTerminates(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("STATUS\r"))

	if len(*lines) != 1 || string((*lines)[0]) != "STATUS" {
		t.Fatalf("dispatched %v, want one STATUS line", *lines)
	}
}

func TestFramerCRLFDispatchesOnce(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("PING\r\nPONG\r\n"))

	if len(*lines) != 2 {
		t.Fatalf("dispatched %d lines, want 2", len(*lines))
	}
	if string((*lines)[0]) != "PING" || string((*lines)[1]) != "PONG" {
		t.Errorf("dispatched %q and %q", (*lines)[0], (*lines)[1])
	}
}

func TestFramerSwallowsEmptyLines(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("\n\r\n\r\r"))

	if len(*lines) != 0 {
		t.Errorf("dispatched %d lines from pure terminators, want 0", len(*lines))
	}
}

func TestFramerAccumulatesAcrossWrites(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("PI"))
	f.Write([]byte("NG"))
	if len(*lines) != 0 {
		t.Fatal("dispatched before a terminator arrived")
	}
	if f.Pending() != 4 {
		t.Errorf("pending = %d, want 4", f.Pending())
	}
	f.Write([]byte("\n"))

	if len(*lines) != 1 || string((*lines)[0]) != "PING" {
		t.Fatalf("dispatched %v, want one PING line", *lines)
	}
}

func TestFramerForceDispatchesAtCapacity(t *testing.T) {
	const capacity = 16
	f, lines := collect(capacity)

	filler := bytes.Repeat([]byte{'A'}, capacity)
	f.Write(filler)

	if len(*lines) != 1 {
		t.Fatalf("dispatched %d lines at capacity, want 1", len(*lines))
	}
	if !bytes.Equal((*lines)[0], filler) {
		t.Errorf("truncated line = %q, want %d 'A' bytes", (*lines)[0], capacity)
	}
	if f.Pending() != 0 {
		t.Errorf("pending = %d after forced dispatch, want 0", f.Pending())
	}

	// The accumulator must be clean for the next command.
	f.Write([]byte("NEXT\n"))
	if len(*lines) != 2 || string((*lines)[1]) != "NEXT" {
		t.Fatalf("dispatched %v, want NEXT after recovery", *lines)
	}
}

func TestFramerLongCommandTruncates(t *testing.T) {
	const capacity = 8
	f, lines := collect(capacity)

	// 20 content bytes against an 8 byte accumulator: two forced dispatches
	// plus the 4 byte remainder on the terminator.
	f.Write([]byte(strings.Repeat("x", 20) + "\n"))

	if len(*lines) != 3 {
		t.Fatalf("dispatched %d lines, want 3", len(*lines))
	}
	if len((*lines)[0]) != capacity || len((*lines)[1]) != capacity {
		t.Error("forced dispatches are not at capacity length")
	}
	if got := string((*lines)[2]); got != "xxxx" {
		t.Errorf("remainder = %q, want %q", got, "xxxx")
	}
}

func TestFramerReset(t *testing.T) {
	f, lines := collect(64)

	f.Write([]byte("PARTIAL"))
	f.Reset()
	f.Write([]byte("PING\n"))

	if len(*lines) != 1 || string((*lines)[0]) != "PING" {
		t.Fatalf("dispatched %v, want PING only after reset", *lines)
	}
}

func TestFramerZeroCapacityFallsBack(t *testing.T) {
	f := NewFramer(0, func([]byte) {})
	if len(f.buf) != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", len(f.buf), DefaultCapacity)
	}
}
