package magic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

type Magic uint32

const (
	Magic32      Magic = 0xfeedface
	Magic64      Magic = 0xfeedfacf
	MagicFatBE   Magic = 0xcafebabe
	MagicFat64BE Magic = 0xcafebabf

	Magic32Swapped Magic = 0xcefaedfe
	Magic64Swapped Magic = 0xcffaedfe
	MagicFatLE     Magic = 0xbebafeca
	MagicFat64LE   Magic = 0xbfbafeca
)

// ErrNotMachO is returned for files that do not start with a Mach-O magic
var ErrNotMachO = errors.New("not a macho file")

// Read returns the magic of the file at filePath as stored (big-endian).
func Read(filePath string) (Magic, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err = io.ReadFull(f, magic[:]); err != nil {
		return 0, fmt.Errorf("failed to read magic: %w", err)
	}
	return Magic(binary.BigEndian.Uint32(magic[:])), nil
}

// IsFat reports whether m is a universal binary magic.
func (m Magic) IsFat() bool {
	switch m {
	case MagicFatBE, MagicFat64BE, MagicFatLE, MagicFat64LE:
		return true
	}
	return false
}

// IsMachO reports whether m is a thin or universal Mach-O magic.
func (m Magic) IsMachO() bool {
	switch m {
	case Magic32, Magic64, Magic32Swapped, Magic64Swapped:
		return true
	}
	return m.IsFat()
}

func IsMachO(filePath string) (bool, error) {
	m, err := Read(filePath)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return false, ErrNotMachO
		}
		return false, err
	}
	if !m.IsMachO() {
		return false, ErrNotMachO
	}
	return true, nil
}
