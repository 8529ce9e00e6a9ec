package macho

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/blacktop/go-macho/types"
)

const (
	fatMagic   = 0xcafebabe
	fatMagic64 = 0xcafebabf // fat_arch_64 entries (64-bit offsets and sizes)

	fatHeaderSize    = 8
	fatArchSize      = 5 * 4
	fatArch64Size    = 8 * 4
	maxFatArchCount  = 128
	maxFatAlignShift = 31
)

// A FatArch is one slice of a universal binary.
type FatArch struct {
	CPU    types.CPU        `json:"cpu"`
	SubCPU types.CPUSubtype `json:"subcpu"`
	Offset uint64           `json:"offset"`
	Size   uint64           `json:"size"`
	Align  uint32           `json:"align"`
}

// Arch returns the slice's short architecture name.
func (fa FatArch) Arch() string { return ArchName(fa.CPU, fa.SubCPU) }

func (fa FatArch) String() string {
	return fmt.Sprintf("%s offset=%#x size=%#x align=2^%d", fa.Arch(), fa.Offset, fa.Size, fa.Align)
}

// Arches lists the slices of a universal binary. It returns ErrNotFat for a
// single-architecture image.
func Arches(data []byte) ([]FatArch, error) {
	kind, bo, lay := identify(data)
	switch kind {
	case kindThin:
		return nil, ErrNotFat
	case kindFat:
		return parseFatArches("", data, bo, lay.is64)
	}
	return nil, invalidf("", "unrecognized magic %s", magicString(data))
}

func parseFatArches(path string, data []byte, bo binary.ByteOrder, is64 bool) ([]FatArch, error) {
	if len(data) < fatHeaderSize {
		return nil, invalidf(path, "truncated fat header (%d bytes)", len(data))
	}

	count := bo.Uint32(data[4:])
	if count == 0 {
		return nil, invalidf(path, "fat header declares no architectures")
	}
	if count > maxFatArchCount {
		return nil, invalidf(path, "fat header declares too many architectures (%d)", count)
	}

	entrySize := uint64(fatArchSize)
	if is64 {
		entrySize = fatArch64Size
	}
	tableEnd := fatHeaderSize + uint64(count)*entrySize
	if tableEnd > uint64(len(data)) {
		return nil, invalidf(path, "fat arch table (%d entries) extends past end of file", count)
	}

	arches := make([]FatArch, 0, count)
	for i := uint64(0); i < uint64(count); i++ {
		ent := data[fatHeaderSize+i*entrySize:]

		fa := FatArch{
			CPU:    types.CPU(bo.Uint32(ent[0:])),
			SubCPU: types.CPUSubtype(bo.Uint32(ent[4:])),
		}
		if is64 {
			fa.Offset = bo.Uint64(ent[8:])
			fa.Size = bo.Uint64(ent[16:])
			fa.Align = bo.Uint32(ent[24:])
		} else {
			fa.Offset = uint64(bo.Uint32(ent[8:]))
			fa.Size = uint64(bo.Uint32(ent[12:]))
			fa.Align = bo.Uint32(ent[16:])
		}

		if fa.Align > maxFatAlignShift {
			return nil, invalidf(path, "fat arch %d (%s) has alignment 2^%d", i, fa.Arch(), fa.Align)
		}
		if fa.Size == 0 {
			return nil, invalidf(path, "fat arch %d (%s) is empty", i, fa.Arch())
		}
		if fa.Offset < tableEnd {
			return nil, invalidf(path, "fat arch %d (%s) overlaps the fat header", i, fa.Arch())
		}
		if fa.Offset > uint64(len(data)) || fa.Size > uint64(len(data))-fa.Offset {
			return nil, invalidf(path, "fat arch %d (%s) extends past end of file", i, fa.Arch())
		}

		arches = append(arches, fa)
	}

	return arches, nil
}

// selectSlice picks the slice matching arch, or the first one when arch is empty.
func selectSlice(path string, arches []FatArch, arch string) (FatArch, error) {
	if arch == "" {
		return arches[0], nil
	}
	var names []string
	for _, fa := range arches {
		if strings.EqualFold(fa.Arch(), arch) {
			return fa, nil
		}
		names = append(names, fa.Arch())
	}
	return FatArch{}, invalidf(path, "universal binary does not contain arch %s (found %s)", arch, strings.Join(names, ", "))
}

func magicString(data []byte) string {
	if len(data) < magicSize {
		return fmt.Sprintf("<%d bytes>", len(data))
	}
	return fmt.Sprintf("%#08x", binary.BigEndian.Uint32(data))
}
