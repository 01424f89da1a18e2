// Package wasmtest assembles tiny WASI command modules for tests. A Program
// writes fixed text to stdout or stderr and then returns, exits, traps or
// spins, which is enough to stand in for the interpreter wherever only the
// harness around it is under test.
package wasmtest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Program describes the guest's behaviour.
type Program struct {
	Writes   []Write
	ExitCode int  // passed to proc_exit when Exit is set
	Exit     bool // call proc_exit after the writes
	Trap     bool // execute unreachable after the writes
	Spin     bool // loop forever after the writes
}

// Write is one fd_write call.
type Write struct {
	FD   int
	Text string
}

// Stdout returns a write of text to fd 1.
func Stdout(text string) Write {
	return Write{FD: 1, Text: text}
}

// Stderr returns a write of text to fd 2.
func Stderr(text string) Write {
	return Write{FD: 2, Text: text}
}

const (
	iovecBase    = 0
	nwrittenAddr = 512
	textBase     = 1024
)

func uleb(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(n int32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func i32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(v)...)
}

// Assemble encodes p as a WASM binary importing fd_write and proc_exit from
// wasi_snapshot_preview1 and exporting memory and _start. All text must fit
// in the single 64KiB memory page.
func (p Program) Assemble() []byte {
	const (
		i32  = 0x7f
		fn   = 0x60
		void = 0x40
	)

	types := vec(
		[]byte{fn, 4, i32, i32, i32, i32, 1, i32}, // 0: fd_write
		[]byte{fn, 0, 0},                          // 1: _start
		[]byte{fn, 1, i32, 0},                     // 2: proc_exit
	)

	imports := vec(
		append(append(name("wasi_snapshot_preview1"), name("fd_write")...), 0x00, 0),
		append(append(name("wasi_snapshot_preview1"), name("proc_exit")...), 0x00, 2),
	)

	funcs := vec(uleb(1))
	memory := vec([]byte{0x00, 1})
	exports := vec(
		append(name("memory"), 0x02, 0),
		append(name("_start"), 0x00, 2),
	)

	image := make([]byte, textBase)
	var body []byte
	body = append(body, 0x00) // no locals
	for i, w := range p.Writes {
		iov := iovecBase + 8*i
		binary.LittleEndian.PutUint32(image[iov:], uint32(len(image)))
		binary.LittleEndian.PutUint32(image[iov+4:], uint32(len(w.Text)))
		image = append(image, w.Text...)

		body = append(body, i32Const(int32(w.FD))...)
		body = append(body, i32Const(int32(iov))...)
		body = append(body, i32Const(1)...)
		body = append(body, i32Const(nwrittenAddr)...)
		body = append(body, 0x10, 0x00) // call fd_write
		body = append(body, 0x1a)       // drop
	}
	if p.Exit {
		body = append(body, i32Const(int32(p.ExitCode))...)
		body = append(body, 0x10, 0x01) // call proc_exit
	}
	if p.Spin {
		body = append(body, 0x03, void, 0x0c, 0x00, 0x0b) // loop br 0 end
	}
	if p.Trap {
		body = append(body, 0x00) // unreachable
	}
	body = append(body, 0x0b)

	code := vec(append(uleb(uint32(len(body))), body...))

	segment := []byte{0x00}
	segment = append(segment, i32Const(0)...)
	segment = append(segment, 0x0b)
	segment = append(segment, uleb(uint32(len(image)))...)
	segment = append(segment, image...)
	data := vec(segment)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(5, memory)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	out = append(out, section(11, data)...)
	return out
}

// WriteModule assembles p into a file under t.TempDir and returns its path.
func WriteModule(t testing.TB, p Program) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	if err := os.WriteFile(path, p.Assemble(), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	return path
}
