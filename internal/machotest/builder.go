// Package machotest builds small synthetic Mach-O images for tests.
package machotest

import (
	"encoding/binary"
	"os"

	"github.com/blacktop/go-macho/types"
)

// Builder assembles a thin Mach-O image one load command at a time.
type Builder struct {
	bo    binary.ByteOrder
	is64  bool
	cpu   types.CPU
	sub   types.CPUSubtype
	ftype types.HeaderFileType
	cmds  [][]byte

	ncmds      *uint32
	sizeofcmds *uint32
	trailer    []byte
}

// New64 starts a little-endian 64-bit MH_EXECUTE image.
func New64(cpu types.CPU, sub types.CPUSubtype) *Builder {
	return &Builder{bo: binary.LittleEndian, is64: true, cpu: cpu, sub: sub, ftype: types.MH_EXECUTE}
}

// New32 starts a little-endian 32-bit MH_EXECUTE image.
func New32(cpu types.CPU, sub types.CPUSubtype) *Builder {
	return &Builder{bo: binary.LittleEndian, cpu: cpu, sub: sub, ftype: types.MH_EXECUTE}
}

func (b *Builder) BigEndian() *Builder {
	b.bo = binary.BigEndian
	return b
}

func (b *Builder) Type(t types.HeaderFileType) *Builder {
	b.ftype = t
	return b
}

func (b *Builder) align() int {
	if b.is64 {
		return 8
	}
	return 4
}

// Command appends cmd with the given body; cmdsize is computed and padded.
func (b *Builder) Command(cmd types.LoadCmd, body []byte) *Builder {
	size := 8 + len(body)
	if rem := size % b.align(); rem != 0 {
		size += b.align() - rem
	}
	raw := make([]byte, size)
	b.bo.PutUint32(raw[0:], uint32(cmd))
	b.bo.PutUint32(raw[4:], uint32(size))
	copy(raw[8:], body)
	b.cmds = append(b.cmds, raw)
	return b
}

// Raw appends an already encoded command as is.
func (b *Builder) Raw(raw []byte) *Builder {
	b.cmds = append(b.cmds, raw)
	return b
}

// lcStr encodes the fixed fields of a command followed by its NUL terminated string.
func (b *Builder) lcStr(fixed []uint32, str string) []byte {
	body := make([]byte, 4*(len(fixed)+1))
	b.bo.PutUint32(body, uint32(8+len(body)))
	for i, v := range fixed {
		b.bo.PutUint32(body[4*(i+1):], v)
	}
	body = append(body, str...)
	return append(body, 0)
}

func (b *Builder) Rpath(path string) *Builder {
	return b.Command(types.LC_RPATH, b.lcStr(nil, path))
}

func (b *Builder) Dylib(cmd types.LoadCmd, name string, current, compat uint32) *Builder {
	return b.Command(cmd, b.lcStr([]uint32{2, current, compat}, name))
}

func (b *Builder) LoadDylib(name string) *Builder {
	return b.Dylib(types.LC_LOAD_DYLIB, name, 0x10000, 0x10000)
}

// UUID appends an all-zero LC_UUID.
func (b *Builder) UUID() *Builder {
	return b.Command(types.LC_UUID, make([]byte, 16))
}

// WithUUID appends an LC_UUID holding id.
func (b *Builder) WithUUID(id [16]byte) *Builder {
	return b.Command(types.LC_UUID, id[:])
}

// NCmds overrides the header's ncmds.
func (b *Builder) NCmds(n uint32) *Builder {
	b.ncmds = &n
	return b
}

// SizeOfCmds overrides the header's sizeofcmds.
func (b *Builder) SizeOfCmds(n uint32) *Builder {
	b.sizeofcmds = &n
	return b
}

// Trailer appends data after the load commands (e.g. segment contents).
func (b *Builder) Trailer(data []byte) *Builder {
	b.trailer = data
	return b
}

func (b *Builder) Bytes() []byte {
	var cmds []byte
	for _, c := range b.cmds {
		cmds = append(cmds, c...)
	}
	ncmds := uint32(len(b.cmds))
	if b.ncmds != nil {
		ncmds = *b.ncmds
	}
	sizeofcmds := uint32(len(cmds))
	if b.sizeofcmds != nil {
		sizeofcmds = *b.sizeofcmds
	}

	magic := types.Magic32
	hdrSize := types.FileHeaderSize32
	if b.is64 {
		magic = types.Magic64
		hdrSize = types.FileHeaderSize64
	}
	hdr := make([]byte, hdrSize)
	b.bo.PutUint32(hdr[0:], uint32(magic))
	b.bo.PutUint32(hdr[4:], uint32(b.cpu))
	b.bo.PutUint32(hdr[8:], uint32(b.sub))
	b.bo.PutUint32(hdr[12:], uint32(b.ftype))
	b.bo.PutUint32(hdr[16:], ncmds)
	b.bo.PutUint32(hdr[20:], sizeofcmds)
	b.bo.PutUint32(hdr[24:], uint32(types.PIE|types.DyldLink|types.TwoLevel))

	out := append(hdr, cmds...)
	return append(out, b.trailer...)
}

// WriteFile writes the image to path with execute permissions.
func (b *Builder) WriteFile(path string) error {
	return os.WriteFile(path, b.Bytes(), 0o755)
}

// A Slice is one architecture of a universal binary.
type Slice struct {
	CPU    types.CPU
	SubCPU types.CPUSubtype
	Data   []byte
}

const fatAlignShift = 12

// Fat wraps slices in a big-endian fat header, each page aligned.
func Fat(slices ...Slice) []byte {
	return FatOrder(binary.BigEndian, slices...)
}

// FatOrder is Fat with the fat header and arch table written in bo. A
// little-endian table starts with the swapped magic 0xbebafeca.
func FatOrder(bo binary.ByteOrder, slices ...Slice) []byte {
	const pageSize = 1 << fatAlignShift

	hdr := make([]byte, 8+20*len(slices))
	bo.PutUint32(hdr[0:], 0xcafebabe)
	bo.PutUint32(hdr[4:], uint32(len(slices)))

	out := make([]byte, pageSize)
	for i, s := range slices {
		off := len(out)
		ent := hdr[8+20*i:]
		bo.PutUint32(ent[0:], uint32(s.CPU))
		bo.PutUint32(ent[4:], uint32(s.SubCPU))
		bo.PutUint32(ent[8:], uint32(off))
		bo.PutUint32(ent[12:], uint32(len(s.Data)))
		bo.PutUint32(ent[16:], fatAlignShift)

		out = append(out, s.Data...)
		if rem := len(out) % pageSize; rem != 0 {
			out = append(out, make([]byte, pageSize-rem)...)
		}
	}
	copy(out, hdr)
	return out
}
