package iconbridge

import (
	"encoding/binary"
	"fmt"

	"github.com/1broseidon/deskhook/internal/platform"
)

// Wire sizes of the records the list view reads and writes.
const (
	pointSize       = 8  // POINT
	hitTestInfoSize = 24 // LVHITTESTINFO: pt, flags, iItem, iSubItem, iGroup
)

// foreignBuffer is a fixed-size block of memory inside another process.
type foreignBuffer struct {
	shell Shell
	proc  platform.ProcessHandle
	addr  uintptr
	size  int
}

func allocForeign(shell Shell, proc platform.ProcessHandle, size int) (*foreignBuffer, error) {
	addr, err := shell.AllocForeign(proc, size)
	if err != nil {
		return nil, err
	}
	return &foreignBuffer{shell: shell, proc: proc, addr: addr, size: size}, nil
}

func (f *foreignBuffer) write(data []byte) error {
	if len(data) > f.size {
		return fmt.Errorf("write %d bytes into %d byte buffer", len(data), f.size)
	}
	return f.shell.WriteForeign(f.proc, f.addr, data)
}

func (f *foreignBuffer) read(buf []byte) error {
	if len(buf) > f.size {
		return fmt.Errorf("read %d bytes from %d byte buffer", len(buf), f.size)
	}
	return f.shell.ReadForeign(f.proc, f.addr, buf)
}

func (f *foreignBuffer) free() error {
	return f.shell.FreeForeign(f.proc, f.addr)
}

type hitTestInfo struct {
	Point   platform.Point
	Flags   uint32
	Item    int32
	SubItem int32
	Group   int32
}

func (h hitTestInfo) marshal() []byte {
	buf := make([]byte, hitTestInfoSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(h.Point.X)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(h.Point.Y)))
	binary.LittleEndian.PutUint32(buf[8:], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:], uint32(h.Item))
	binary.LittleEndian.PutUint32(buf[16:], uint32(h.SubItem))
	binary.LittleEndian.PutUint32(buf[20:], uint32(h.Group))
	return buf
}

func unmarshalHitTestInfo(buf []byte) hitTestInfo {
	return hitTestInfo{
		Point:   unmarshalPoint(buf[0:8]),
		Flags:   binary.LittleEndian.Uint32(buf[8:]),
		Item:    int32(binary.LittleEndian.Uint32(buf[12:])),
		SubItem: int32(binary.LittleEndian.Uint32(buf[16:])),
		Group:   int32(binary.LittleEndian.Uint32(buf[20:])),
	}
}

func marshalPoint(p platform.Point) []byte {
	buf := make([]byte, pointSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(p.X)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(p.Y)))
	return buf
}

func unmarshalPoint(buf []byte) platform.Point {
	return platform.Point{
		X: int(int32(binary.LittleEndian.Uint32(buf[0:]))),
		Y: int(int32(binary.LittleEndian.Uint32(buf[4:]))),
	}
}
