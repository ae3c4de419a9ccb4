// Package elfwriter implements the ELF64 executable writer of §4.5/§12:
// a minimal `ET_EXEC`/`EM_X86_64` header plus one `PT_LOAD` program
// header covering code and an optional BSS tail.
//
// Grounded on other_examples/lcox74-bfcc's pkg/elf builder-pattern usage
// (`elf.NewBuilder().SetEntry(...).AddLoadSegment(...).AddBSSSegment(...).Build()`)
// — that package itself is referenced but not present in the retrieval
// pack, so its header-packing internals are rebuilt here using the
// teacher's own lang/yasm/output.go technique: explicit little-endian
// byte packing via encoding/binary at fixed offsets, rather than a
// hand-rolled byte-twiddling alternative to that stdlib package (see
// DESIGN.md for why no third-party ELF library is used here).
package elfwriter

import "encoding/binary"

// Target selects the load address a binary is built for (§4.5's Linux
// vs. XV6 output); both targets use the same page size.
type Target int

const (
	Linux Target = iota
	XV6
)

// Page-aligned load addresses. Linux's default ET_EXEC base is the
// traditional non-PIE `0x400000`-style address; XV6's loader
// (`exec.c`) maps everything at a fixed `0x1000`.
const (
	linuxLoadAddr = 0x400000
	xv6LoadAddr   = 0x1000
	pageSize      = 0x1000
)

func (t Target) base() uint64 {
	if t == XV6 {
		return xv6LoadAddr
	}
	return linuxLoadAddr
}

const (
	ehdrSize = 64
	phdrSize = 56

	etExec   = 2
	emX8664  = 62
	ptLoad   = 1
	pfX      = 1
	pfW      = 2
	pfR      = 4
	evCurent = 1
)

// Builder accumulates a code buffer and a BSS size, then assembles a
// complete ELF64 image — the same staged-accumulation shape as
// lcox74-bfcc's elf.Builder, generalized from that package's single
// fixed Brainfuck tape segment to an arbitrary caller-supplied BSS size
// (this compiler's global/static uninitialized data).
type Builder struct {
	target Target
	code   []byte
	bssLen int
}

// NewBuilder creates a Builder targeting t.
func NewBuilder(t Target) *Builder { return &Builder{target: t} }

// SetCode supplies the fully-fixed-up machine code buffer.
func (b *Builder) SetCode(code []byte) *Builder { b.code = code; return b }

// SetBSSSize records the zero-initialized tail's size in bytes (rounded
// up by the caller to whatever alignment its layout requires).
func (b *Builder) SetBSSSize(n int) *Builder { b.bssLen = n; return b }

// headerSize is the ehdr+phdr prefix every image carries ahead of its
// code, for both targets — the single PT_LOAD segment covers this
// prefix too (file offset 0 maps to the segment's vaddr), so the entry
// point is simply base()+headerSize (§4.5 "entry point set to the
// virtual address of label _start", which the emitter places first).
const headerSize = ehdrSize + phdrSize

// entryAddr returns the virtual address of the first code byte.
func (b *Builder) entryAddr() uint64 { return b.target.base() + headerSize }

// Build assembles the final ELF64 image: ehdrSize bytes of header, one
// PT_LOAD program header, then the code bytes. filesz covers the
// header+code; memsz adds bssLen of zero-fill the kernel provides for
// free (§8's "filesz <= memsz" invariant).
func (b *Builder) Build() []byte {
	filesz := uint64(headerSize + len(b.code))
	memsz := filesz + uint64(b.bssLen)

	buf := make([]byte, headerSize)
	writeEhdr(buf, b.entryAddr(), ehdrSize)
	writePhdr(buf[ehdrSize:], 0, b.target.base(), filesz, memsz, pfR|pfX)
	buf = append(buf, b.code...)
	return buf
}

func writeEhdr(b []byte, entry uint64, phoff uint64) {
	copy(b[0:4], []byte{0x7F, 'E', 'L', 'F'})
	b[4] = 2 // ELFCLASS64
	b[5] = 1 // ELFDATA2LSB
	b[6] = evCurent
	b[7] = 0 // ELFOSABI_SYSV
	// bytes 8-15 (ABI version + padding) already zero
	binary.LittleEndian.PutUint16(b[16:], etExec)
	binary.LittleEndian.PutUint16(b[18:], emX8664)
	binary.LittleEndian.PutUint32(b[20:], evCurent)
	binary.LittleEndian.PutUint64(b[24:], entry)
	binary.LittleEndian.PutUint64(b[32:], phoff) // e_phoff
	binary.LittleEndian.PutUint64(b[40:], 0)     // e_shoff (no section headers)
	binary.LittleEndian.PutUint32(b[48:], 0)     // e_flags
	binary.LittleEndian.PutUint16(b[52:], ehdrSize)
	binary.LittleEndian.PutUint16(b[54:], phdrSize)
	binary.LittleEndian.PutUint16(b[56:], 1) // e_phnum
	binary.LittleEndian.PutUint16(b[58:], 0) // e_shentsize
	binary.LittleEndian.PutUint16(b[60:], 0) // e_shnum
	binary.LittleEndian.PutUint16(b[62:], 0) // e_shstrndx
}

func writePhdr(b []byte, fileOff, vaddr, filesz, memsz uint64, flags uint32) {
	binary.LittleEndian.PutUint32(b[0:], ptLoad)
	binary.LittleEndian.PutUint32(b[4:], flags)
	binary.LittleEndian.PutUint64(b[8:], fileOff)
	binary.LittleEndian.PutUint64(b[16:], vaddr)
	binary.LittleEndian.PutUint64(b[24:], vaddr) // p_paddr, unused but conventionally mirrors p_vaddr
	binary.LittleEndian.PutUint64(b[32:], filesz)
	binary.LittleEndian.PutUint64(b[40:], memsz)
	binary.LittleEndian.PutUint64(b[48:], pageSize) // p_align
}
