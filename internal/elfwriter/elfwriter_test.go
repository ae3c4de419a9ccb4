package elfwriter

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildMagicAndClass(t *testing.T) {
	img := NewBuilder(Linux).SetCode([]byte{0x90, 0x90}).Build()
	if !bytes.Equal(img[0:4], []byte{0x7F, 'E', 'L', 'F'}) {
		t.Fatalf("bad ELF magic: % X", img[0:4])
	}
	if img[4] != 2 {
		t.Errorf("EI_CLASS = %d, want 2 (ELFCLASS64)", img[4])
	}
	if img[5] != 1 {
		t.Errorf("EI_DATA = %d, want 1 (ELFDATA2LSB)", img[5])
	}
	if got := binary.LittleEndian.Uint16(img[16:]); got != etExec {
		t.Errorf("e_type = %d, want ET_EXEC", got)
	}
	if got := binary.LittleEndian.Uint16(img[18:]); got != emX8664 {
		t.Errorf("e_machine = %d, want EM_X86_64", got)
	}
}

func TestEntryPointIsBasePlusHeaderSize(t *testing.T) {
	b := NewBuilder(Linux).SetCode([]byte{0x90})
	img := b.Build()
	entry := binary.LittleEndian.Uint64(img[24:])
	if want := linuxLoadAddr + uint64(headerSize); entry != want {
		t.Errorf("entry = %#x, want %#x", entry, want)
	}

	bx := NewBuilder(XV6).SetCode([]byte{0x90})
	imgx := bx.Build()
	entryx := binary.LittleEndian.Uint64(imgx[24:])
	if want := xv6LoadAddr + uint64(headerSize); entryx != want {
		t.Errorf("xv6 entry = %#x, want %#x", entryx, want)
	}
}

func TestFileszNeverExceedsMemsz(t *testing.T) {
	code := make([]byte, 128)
	img := NewBuilder(Linux).SetCode(code).SetBSSSize(256).Build()
	phoff := binary.LittleEndian.Uint64(img[32:])
	phdr := img[phoff:]
	filesz := binary.LittleEndian.Uint64(phdr[32:])
	memsz := binary.LittleEndian.Uint64(phdr[40:])
	if filesz > memsz {
		t.Errorf("filesz %d > memsz %d", filesz, memsz)
	}
	if want := uint64(headerSize + len(code)); filesz != want {
		t.Errorf("filesz = %d, want %d", filesz, want)
	}
	if want := filesz + 256; memsz != want {
		t.Errorf("memsz = %d, want %d", memsz, want)
	}
}

func TestProgramHeaderFlagsAreReadExecute(t *testing.T) {
	img := NewBuilder(Linux).SetCode([]byte{0x90}).Build()
	phoff := binary.LittleEndian.Uint64(img[32:])
	flags := binary.LittleEndian.Uint32(img[phoff+4:])
	if flags != pfR|pfX {
		t.Errorf("p_flags = %#x, want R|X = %#x", flags, pfR|pfX)
	}
	typ := binary.LittleEndian.Uint32(img[phoff:])
	if typ != ptLoad {
		t.Errorf("p_type = %d, want PT_LOAD", typ)
	}
}

func TestZeroBSSStillBuilds(t *testing.T) {
	img := NewBuilder(XV6).SetCode([]byte{0xC3}).Build()
	if len(img) != headerSize+1 {
		t.Errorf("image length = %d, want %d", len(img), headerSize+1)
	}
}
