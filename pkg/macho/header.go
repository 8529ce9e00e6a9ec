package macho

import (
	"encoding/binary"
	"fmt"

	"github.com/blacktop/go-macho/types"
)

const magicSize = 4

// layout is the fixed record shape of a thin image, chosen once from its magic.
type layout struct {
	is64       bool
	headerSize uint64
	cmdAlign   uint32
}

var (
	layout32 = layout{is64: false, headerSize: types.FileHeaderSize32, cmdAlign: 4}
	layout64 = layout{is64: true, headerSize: types.FileHeaderSize64, cmdAlign: 8}
)

// fileHeader is the part of mach_header/mach_header_64 both layouts share.
// The 64-bit reserved word is never read.
type fileHeader struct {
	Magic        types.Magic
	CPU          types.CPU
	SubCPU       types.CPUSubtype
	Type         types.HeaderFileType
	NCommands    uint32
	SizeCommands uint32
	Flags        types.HeaderFlag
}

type imageKind int

const (
	kindUnknown imageKind = iota
	kindThin
	kindFat
)

// identify inspects the magic number. For thin images it returns the byte
// order and layout the remaining fields must be read with; fat headers are
// returned with the byte order of their arch table.
func identify(data []byte) (imageKind, binary.ByteOrder, layout) {
	if len(data) < magicSize {
		return kindUnknown, nil, layout{}
	}
	be := types.Magic(binary.BigEndian.Uint32(data))
	le := types.Magic(binary.LittleEndian.Uint32(data))

	switch {
	case be == types.Magic32:
		return kindThin, binary.BigEndian, layout32
	case be == types.Magic64:
		return kindThin, binary.BigEndian, layout64
	case le == types.Magic32:
		return kindThin, binary.LittleEndian, layout32
	case le == types.Magic64:
		return kindThin, binary.LittleEndian, layout64
	case uint32(be) == fatMagic || uint32(be) == fatMagic64:
		return kindFat, binary.BigEndian, layout{is64: uint32(be) == fatMagic64}
	case uint32(le) == fatMagic || uint32(le) == fatMagic64:
		return kindFat, binary.LittleEndian, layout{is64: uint32(le) == fatMagic64}
	}
	return kindUnknown, nil, layout{}
}

func readFileHeader(data []byte, bo binary.ByteOrder) fileHeader {
	return fileHeader{
		Magic:        types.Magic(bo.Uint32(data[0:])),
		CPU:          types.CPU(bo.Uint32(data[4:])),
		SubCPU:       types.CPUSubtype(bo.Uint32(data[8:])),
		Type:         types.HeaderFileType(bo.Uint32(data[12:])),
		NCommands:    bo.Uint32(data[16:]),
		SizeCommands: bo.Uint32(data[20:]),
		Flags:        types.HeaderFlag(bo.Uint32(data[24:])),
	}
}

// high byte of cpusubtype holds capability bits (e.g. CPU_SUBTYPE_LIB64, ptrauth ABI)
const cpuSubtypeMask types.CPUSubtype = 0x00ffffff

// ArchName returns the short architecture name used by lipo and xcodebuild
// (arm64, arm64e, x86_64, armv7s, ...).
func ArchName(cpu types.CPU, sub types.CPUSubtype) string {
	sub &= cpuSubtypeMask
	switch cpu {
	case types.CPUArm64:
		if sub == types.CPUSubtypeArm64E {
			return "arm64e"
		}
		return "arm64"
	case types.CPUArm6432:
		return "arm64_32"
	case types.CPUAmd64:
		if sub == types.CPUSubtypeX86_64H {
			return "x86_64h"
		}
		return "x86_64"
	case types.CPUI386:
		return "i386"
	case types.CPUArm:
		switch sub {
		case types.CPUSubtypeArmV6:
			return "armv6"
		case types.CPUSubtypeArmV7:
			return "armv7"
		case types.CPUSubtypeArmV7S:
			return "armv7s"
		case types.CPUSubtypeArmV7K:
			return "armv7k"
		case types.CPUSubtypeArmV8:
			return "armv8"
		}
		return "arm"
	case types.CPUPpc:
		return "ppc"
	case types.CPUPpc64:
		return "ppc64"
	}
	return fmt.Sprintf("cpu%#x", uint32(cpu))
}
