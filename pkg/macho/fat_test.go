package macho

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/blacktop/execbin/internal/machotest"
	"github.com/blacktop/go-macho/types"
)

func universal() []byte {
	return universalOrder(binary.BigEndian)
}

func universalOrder(bo binary.ByteOrder) []byte {
	return machotest.FatOrder(bo,
		machotest.Slice{
			CPU:    types.CPUAmd64,
			SubCPU: types.CPUSubtypeX8664All,
			Data: machotest.New64(types.CPUAmd64, types.CPUSubtypeX8664All).
				Rpath("@executable_path/../Frameworks").
				LoadDylib("/usr/lib/libSystem.B.dylib").
				Bytes(),
		},
		machotest.Slice{
			CPU:    types.CPUArm64,
			SubCPU: types.CPUSubtypeArm64All,
			Data: machotest.New64(types.CPUArm64, types.CPUSubtypeArm64All).
				Rpath("@loader_path/lib").
				LoadDylib("/usr/lib/libSystem.B.dylib").
				LoadDylib("@rpath/libswiftCore.dylib").
				Bytes(),
		},
	)
}

func TestNewFat(t *testing.T) {
	tests := []struct {
		name       string
		order      binary.ByteOrder
		arch       string
		wantCPU    types.CPU
		wantRpaths []string
		wantErr    bool
	}{
		{"first slice by default", binary.BigEndian, "", types.CPUAmd64, []string{"@executable_path/../Frameworks"}, false},
		{"select x86_64", binary.BigEndian, "x86_64", types.CPUAmd64, []string{"@executable_path/../Frameworks"}, false},
		{"select arm64", binary.BigEndian, "arm64", types.CPUArm64, []string{"@loader_path/lib"}, false},
		{"arch is case insensitive", binary.BigEndian, "ARM64", types.CPUArm64, []string{"@loader_path/lib"}, false},
		{"missing arch", binary.BigEndian, "arm64e", 0, nil, true},
		{"swapped table first slice", binary.LittleEndian, "", types.CPUAmd64, []string{"@executable_path/../Frameworks"}, false},
		{"swapped table select arm64", binary.LittleEndian, "arm64", types.CPUArm64, []string{"@loader_path/lib"}, false},
		{"swapped table missing arch", binary.LittleEndian, "armv7", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.arch != "" {
				opts = append(opts, WithArch(tt.arch))
			}
			b, err := New("/Applications/Foo.app/Contents/MacOS/Foo", universalOrder(tt.order), opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBinary) {
					t.Errorf("New() error = %v, want InvalidBinary", err)
				}
				return
			}
			if !b.IsFat() {
				t.Error("IsFat() = false, want true")
			}
			if b.CPUType() != tt.wantCPU {
				t.Errorf("CPUType() = %v, want %v", b.CPUType(), tt.wantCPU)
			}
			if !reflect.DeepEqual(b.Rpaths(), tt.wantRpaths) {
				t.Errorf("Rpaths() = %v, want %v", b.Rpaths(), tt.wantRpaths)
			}
		})
	}
}

func TestNewThinWithArch(t *testing.T) {
	data := machotest.New64(types.CPUArm64, 0).Bytes()
	if _, err := New("a", data, WithArch("arm64")); err != nil {
		t.Errorf("New(WithArch(arm64)) error = %v", err)
	}
	if _, err := New("a", data, WithArch("x86_64")); !errors.Is(err, ErrInvalidBinary) {
		t.Errorf("New(WithArch(x86_64)) error = %v, want InvalidBinary", err)
	}
}

func TestArches(t *testing.T) {
	got, err := Arches(universal())
	if err != nil {
		t.Fatalf("Arches() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Arches() returned %d slices, want 2", len(got))
	}
	if got[0].Arch() != "x86_64" || got[1].Arch() != "arm64" {
		t.Errorf("Arches() = %v", got)
	}
	for _, fa := range got {
		if fa.Offset%4096 != 0 || fa.Align != 12 {
			t.Errorf("slice %s is not page aligned: %s", fa.Arch(), fa)
		}
	}

	swapped, err := Arches(universalOrder(binary.LittleEndian))
	if err != nil {
		t.Fatalf("Arches(swapped) error = %v", err)
	}
	if !reflect.DeepEqual(swapped, got) {
		t.Errorf("Arches(swapped) = %v, want %v", swapped, got)
	}

	if _, err := Arches(machotest.New64(types.CPUArm64, 0).Bytes()); !errors.Is(err, ErrNotFat) {
		t.Errorf("Arches(thin) error = %v, want ErrNotFat", err)
	}
	if _, err := Arches([]byte("garbage!")); !errors.Is(err, ErrInvalidBinary) {
		t.Errorf("Arches(garbage) error = %v, want InvalidBinary", err)
	}
}

func TestArchesFat64(t *testing.T) {
	slice := machotest.New64(types.CPUArm64, types.CPUSubtypeArm64E).LoadDylib("/usr/lib/libobjc.A.dylib").Bytes()

	data := make([]byte, 0x1000)
	binary.BigEndian.PutUint32(data[0:], fatMagic64)
	binary.BigEndian.PutUint32(data[4:], 1)
	binary.BigEndian.PutUint32(data[8:], uint32(types.CPUArm64))
	binary.BigEndian.PutUint32(data[12:], uint32(types.CPUSubtypeArm64E))
	binary.BigEndian.PutUint64(data[16:], 0x1000)
	binary.BigEndian.PutUint64(data[24:], uint64(len(slice)))
	binary.BigEndian.PutUint32(data[32:], 12)
	data = append(data, slice...)

	arches, err := Arches(data)
	if err != nil {
		t.Fatalf("Arches() error = %v", err)
	}
	if len(arches) != 1 || arches[0].Arch() != "arm64e" || arches[0].Offset != 0x1000 {
		t.Errorf("Arches() = %v", arches)
	}

	b, err := New("libfoo.dylib", data, WithArch("arm64e"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !reflect.DeepEqual(b.DylibPaths(), []string{"/usr/lib/libobjc.A.dylib"}) {
		t.Errorf("DylibPaths() = %v", b.DylibPaths())
	}
}

func TestNewFatInvalid(t *testing.T) {
	thin := machotest.New64(types.CPUArm64, 0).Bytes()

	// patched edits a fresh single slice universal binary
	patched := func(patch func(d []byte)) []byte {
		d := machotest.Fat(machotest.Slice{CPU: types.CPUArm64, Data: thin})
		patch(d)
		return d
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"truncated fat header", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0}},
		{"no arches", patched(func(d []byte) { binary.BigEndian.PutUint32(d[4:], 0) })},
		{"too many arches", patched(func(d []byte) { binary.BigEndian.PutUint32(d[4:], 0x10000) })},
		{"arch table past end", patched(func(d []byte) { binary.BigEndian.PutUint32(d[4:], 100) })[:64]},
		{"offset past end", patched(func(d []byte) { binary.BigEndian.PutUint32(d[16:], 0x100000) })},
		{"size past end", patched(func(d []byte) { binary.BigEndian.PutUint32(d[20:], 0x100000) })},
		{"offset inside header", patched(func(d []byte) { binary.BigEndian.PutUint32(d[16:], 4) })},
		{"empty slice", patched(func(d []byte) { binary.BigEndian.PutUint32(d[20:], 0) })},
		{"bad alignment", patched(func(d []byte) { binary.BigEndian.PutUint32(d[24:], 64) })},
		{"slice is not a mach-o", patched(func(d []byte) { copy(d[0x1000:], "garbage!") })},
		{"slice cpu disagrees with table", patched(func(d []byte) { binary.BigEndian.PutUint32(d[8:], uint32(types.CPUAmd64)) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("fat", tt.data); !errors.Is(err, ErrInvalidBinary) {
				t.Errorf("New() error = %v, want InvalidBinary", err)
			}
		})
	}
}

func TestArchName(t *testing.T) {
	tests := []struct {
		cpu  types.CPU
		sub  types.CPUSubtype
		want string
	}{
		{types.CPUArm64, types.CPUSubtypeArm64All, "arm64"},
		{types.CPUArm64, types.CPUSubtypeArm64E, "arm64e"},
		{types.CPUArm64, types.CPUSubtypeArm64E | 0x80000000, "arm64e"},
		{types.CPUArm6432, 1, "arm64_32"},
		{types.CPUAmd64, types.CPUSubtypeX8664All, "x86_64"},
		{types.CPUAmd64, types.CPUSubtypeX86_64H, "x86_64h"},
		{types.CPUAmd64, types.CPUSubtypeX8664All | 0x80000000, "x86_64"},
		{types.CPUI386, 3, "i386"},
		{types.CPUArm, types.CPUSubtypeArmV7, "armv7"},
		{types.CPUArm, types.CPUSubtypeArmV7S, "armv7s"},
		{types.CPUArm, types.CPUSubtypeArmV7K, "armv7k"},
		{types.CPUArm, types.CPUSubtypeArmV6, "armv6"},
		{types.CPUArm, 0, "arm"},
		{types.CPUPpc, 0, "ppc"},
		{types.CPU(0x42), 0, "cpu0x42"},
	}
	for _, tt := range tests {
		if got := ArchName(tt.cpu, tt.sub); got != tt.want {
			t.Errorf("ArchName(%#x, %#x) = %s, want %s", uint32(tt.cpu), uint32(tt.sub), got, tt.want)
		}
	}
}
