// Package macho describes the architecture and library linkage of a Mach-O image.
//
// A Binary is built once from an in-memory image and is immutable afterwards:
// it records the CPU type/subtype from the Mach-O header, every LC_RPATH path
// and every dylib load command in file order. Run-path tokens
// (@executable_path, @loader_path, @rpath) are resolved on demand.
package macho

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/blacktop/go-macho/types"
	"github.com/google/uuid"
)

// DylibKind is the load command a dylib reference came from.
type DylibKind uint32

const (
	Load     DylibKind = DylibKind(types.LC_LOAD_DYLIB)
	Weak     DylibKind = DylibKind(types.LC_LOAD_WEAK_DYLIB)
	Reexport DylibKind = DylibKind(types.LC_REEXPORT_DYLIB)
	Lazy     DylibKind = DylibKind(types.LC_LAZY_LOAD_DYLIB)
	Upward   DylibKind = DylibKind(types.LC_LOAD_UPWARD_DYLIB)
)

func (k DylibKind) String() string {
	switch k {
	case Load:
		return "load"
	case Weak:
		return "weak"
	case Reexport:
		return "reexport"
	case Lazy:
		return "lazy"
	case Upward:
		return "upward"
	}
	return types.LoadCmd(k).String()
}

func (k DylibKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Command returns the load command this kind is parsed from.
func (k DylibKind) Command() types.LoadCmd { return types.LoadCmd(k) }

// A Dylib is one dynamic library reference.
type Dylib struct {
	Path           string        `json:"path"`
	Kind           DylibKind     `json:"kind"`
	Timestamp      uint32        `json:"timestamp,omitempty"`
	CurrentVersion types.Version `json:"current_version"`
	CompatVersion  types.Version `json:"compat_version"`
}

const (
	loadCmdHeaderSize = 8       // cmd, cmdsize
	rpathCmdSize      = 3 * 4   // struct rpath_command
	dylibCmdSize      = 6 * 4   // struct dylib_command
	uuidCmdSize       = 8 + 16  // struct uuid_command
	maxLoadCmdCount   = 1 << 20 // far beyond anything a linker emits
)

// A Binary is an immutable description of one Mach-O image.
type Binary struct {
	path      string
	magic     types.Magic
	cpu       types.CPU
	subCPU    types.CPUSubtype
	fileType  types.HeaderFileType
	flags     types.HeaderFlag
	is64      bool
	byteOrder binary.ByteOrder
	fat       bool
	uuid      uuid.UUID

	rpaths []string
	dylibs []Dylib
}

// Option configures New and Open.
type Option func(*options)

type options struct {
	arch string
}

// WithArch selects the slice of a universal binary by short arch name
// (e.g. "arm64", "x86_64"). A thin image must match it as well.
func WithArch(arch string) Option {
	return func(o *options) {
		o.arch = arch
	}
}

// Open reads path and parses it with New.
func Open(path string, opts ...Option) (*Binary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(IOError, path, err, "failed to read image")
	}
	return New(path, data, opts...)
}

// New parses data, the complete contents of the file at path. path is only
// used for diagnostics and for resolving @loader_path/@executable_path.
func New(path string, data []byte, opts ...Option) (*Binary, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	kind, bo, lay := identify(data)
	switch kind {
	case kindFat:
		arches, err := parseFatArches(path, data, bo, lay.is64)
		if err != nil {
			return nil, err
		}
		fa, err := selectSlice(path, arches, o.arch)
		if err != nil {
			return nil, err
		}
		slice := data[fa.Offset : fa.Offset+fa.Size]
		if k, _, _ := identify(slice); k != kindThin {
			return nil, invalidf(path, "fat arch %s does not contain a thin Mach-O image (magic %s)", fa.Arch(), magicString(slice))
		}
		b, err := parseThin(path, slice)
		if err != nil {
			return nil, err
		}
		if b.cpu != fa.CPU {
			return nil, invalidf(path, "fat arch table declares %s but the slice header is %s", fa.CPU, b.cpu)
		}
		b.fat = true
		return b, nil
	case kindThin:
		b, err := parseThin(path, data)
		if err != nil {
			return nil, err
		}
		if o.arch != "" && !strings.EqualFold(b.Arch(), o.arch) {
			return nil, invalidf(path, "binary does not contain arch %s (found %s)", o.arch, b.Arch())
		}
		return b, nil
	}
	if len(data) < magicSize {
		return nil, invalidf(path, "file too small to be a Mach-O (%d bytes)", len(data))
	}
	return nil, invalidf(path, "unrecognized magic %s", magicString(data))
}

func parseThin(path string, data []byte) (*Binary, error) {
	_, bo, lay := identify(data)

	if uint64(len(data)) < lay.headerSize {
		return nil, invalidf(path, "truncated mach header (%d of %d bytes)", len(data), lay.headerSize)
	}
	hdr := readFileHeader(data, bo)

	cmdsEnd := lay.headerSize + uint64(hdr.SizeCommands)
	if cmdsEnd > uint64(len(data)) {
		return nil, invalidf(path, "load commands (sizeofcmds=%#x) extend past end of file (%#x bytes)", hdr.SizeCommands, len(data))
	}
	if hdr.NCommands > maxLoadCmdCount || uint64(hdr.NCommands)*loadCmdHeaderSize > uint64(hdr.SizeCommands) {
		return nil, invalidf(path, "%d load commands cannot fit in sizeofcmds=%#x", hdr.NCommands, hdr.SizeCommands)
	}

	b := &Binary{
		path:      path,
		magic:     hdr.Magic,
		cpu:       hdr.CPU,
		subCPU:    hdr.SubCPU,
		fileType:  hdr.Type,
		flags:     hdr.Flags,
		is64:      lay.is64,
		byteOrder: bo,
	}

	offset := lay.headerSize
	for i := uint32(0); i < hdr.NCommands; i++ {
		if offset+loadCmdHeaderSize > cmdsEnd {
			return nil, invalidf(path, "load command %d at %#x is truncated", i, offset)
		}
		cmd := types.LoadCmd(bo.Uint32(data[offset:]))
		size := bo.Uint32(data[offset+4:])

		if size < loadCmdHeaderSize {
			return nil, invalidf(path, "load command %d (%s) has invalid cmdsize %d", i, cmd, size)
		}
		if size%lay.cmdAlign != 0 {
			return nil, invalidf(path, "load command %d (%s) cmdsize %d is not a multiple of %d", i, cmd, size, lay.cmdAlign)
		}
		if offset+uint64(size) > cmdsEnd {
			return nil, invalidf(path, "load command %d (%s) extends past sizeofcmds", i, cmd)
		}
		raw := data[offset : offset+uint64(size)]

		switch cmd {
		case types.LC_UUID:
			if size < uuidCmdSize {
				return nil, invalidf(path, "load command %d (%s) has invalid cmdsize %d", i, cmd, size)
			}
			if b.uuid == uuid.Nil {
				b.uuid, _ = uuid.FromBytes(raw[loadCmdHeaderSize:uuidCmdSize])
			}
		case types.LC_RPATH:
			rpath, err := cmdString(raw, bo, rpathCmdSize)
			if err != nil {
				return nil, invalidf(path, "load command %d (%s): %v", i, cmd, err)
			}
			b.rpaths = append(b.rpaths, rpath)
		case types.LC_LOAD_DYLIB,
			types.LC_LOAD_WEAK_DYLIB,
			types.LC_REEXPORT_DYLIB,
			types.LC_LAZY_LOAD_DYLIB,
			types.LC_LOAD_UPWARD_DYLIB:
			name, err := cmdString(raw, bo, dylibCmdSize)
			if err != nil {
				return nil, invalidf(path, "load command %d (%s): %v", i, cmd, err)
			}
			b.dylibs = append(b.dylibs, Dylib{
				Path:           name,
				Kind:           DylibKind(cmd),
				Timestamp:      bo.Uint32(raw[12:]),
				CurrentVersion: types.Version(bo.Uint32(raw[16:])),
				CompatVersion:  types.Version(bo.Uint32(raw[20:])),
			})
		}

		offset += uint64(size)
	}

	if offset != cmdsEnd {
		return nil, invalidf(path, "load commands occupy %#x bytes but sizeofcmds is %#x", offset-lay.headerSize, hdr.SizeCommands)
	}

	return b, nil
}

var errBadStringOffset = errors.New("string offset outside of command")

// cmdString reads the lc_str of a command whose fixed part is fixedSize bytes.
// The lc_str offset always sits right after cmd/cmdsize.
func cmdString(raw []byte, bo binary.ByteOrder, fixedSize uint32) (string, error) {
	if uint32(len(raw)) < fixedSize {
		return "", errors.New("cmdsize smaller than command structure")
	}
	off := bo.Uint32(raw[loadCmdHeaderSize:])
	if off < fixedSize || off >= uint32(len(raw)) {
		return "", errBadStringOffset
	}
	str := raw[off:]
	if i := bytes.IndexByte(str, 0); i >= 0 {
		str = str[:i]
	}
	return string(str), nil
}

// Path is the filesystem location the image was read from.
func (b *Binary) Path() string { return b.path }

// Magic is the thin image's magic number as read in its own byte order.
func (b *Binary) Magic() types.Magic { return b.magic }

// CPUType is the header's cputype.
func (b *Binary) CPUType() types.CPU { return b.cpu }

// CPUSubtype is the header's cpusubtype, capability bits included.
func (b *Binary) CPUSubtype() types.CPUSubtype { return b.subCPU }

// Arch is the short architecture name, e.g. arm64 or x86_64.
func (b *Binary) Arch() string { return ArchName(b.cpu, b.subCPU) }

// Type is the Mach-O file type (MH_EXECUTE, MH_DYLIB, ...).
func (b *Binary) Type() types.HeaderFileType { return b.fileType }

// Flags are the mach header flags.
func (b *Binary) Flags() types.HeaderFlag { return b.flags }

func (b *Binary) Is64Bit() bool { return b.is64 }

// ByteOrder is the byte order the image's fields are stored in.
func (b *Binary) ByteOrder() binary.ByteOrder { return b.byteOrder }

// IsFat reports whether the image was selected out of a universal binary.
func (b *Binary) IsFat() bool { return b.fat }

// UUID returns the image's LC_UUID, or uuid.Nil if it has none.
func (b *Binary) UUID() uuid.UUID { return b.uuid }

// Rpaths returns the raw LC_RPATH paths in file order, duplicates included.
func (b *Binary) Rpaths() []string {
	return append([]string(nil), b.rpaths...)
}

// DylibPaths returns the raw install names of every dylib load command in file order.
func (b *Binary) DylibPaths() []string {
	paths := make([]string, 0, len(b.dylibs))
	for _, d := range b.dylibs {
		paths = append(paths, d.Path)
	}
	return paths
}

// Dylibs returns every dylib reference in file order.
func (b *Binary) Dylibs() []Dylib {
	return append([]Dylib(nil), b.dylibs...)
}

func (b *Binary) uuidString() string {
	if b.uuid == uuid.Nil {
		return ""
	}
	return strings.ToUpper(b.uuid.String())
}

func (b *Binary) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Path           string   `json:"path"`
		Arch           string   `json:"arch"`
		CPU            string   `json:"cpu"`
		CPUType        uint32   `json:"cputype"`
		CPUSubtype     uint32   `json:"cpusubtype"`
		Type           string   `json:"filetype"`
		Is64Bit        bool     `json:"is64bit"`
		UUID           string   `json:"uuid,omitempty"`
		Rpaths         []string `json:"rpaths"`
		AbsoluteRpaths []string `json:"absolute_rpaths"`
		Dylibs         []Dylib  `json:"dylibs"`
	}{
		Path:           b.path,
		Arch:           b.Arch(),
		CPU:            b.cpu.String(),
		CPUType:        uint32(b.cpu),
		CPUSubtype:     uint32(b.subCPU),
		Type:           b.fileType.String(),
		Is64Bit:        b.is64,
		UUID:           b.uuidString(),
		Rpaths:         b.Rpaths(),
		AbsoluteRpaths: b.AbsoluteRpaths(),
		Dylibs:         b.Dylibs(),
	})
}
