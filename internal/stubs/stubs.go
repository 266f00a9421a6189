// Package stubs decodes the __TEXT,__stubs section of a Mach-O image to find
// the symbol pointer slot each stub jumps through.
package stubs

import (
	"encoding/binary"

	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// ErrUnknownStub is returned for stub code that does not load a slot the
// way the compiler's stubs do.
var ErrUnknownStub = errors.New("unrecognized stub")

// A Stub is one entry of a stubs section.
type Stub struct {
	Address uint64
	// Slot is the VM address of the pointer the stub jumps through.
	Slot uint64
}

// Resolve decodes every stubSize-byte stub in code, which starts at VM
// address addr.
func Resolve(cpu types.CPU, addr uint64, code []byte, stubSize int) (stubs []Stub, err error) {
	if stubSize <= 0 {
		return nil, errors.Errorf("invalid stub size %d", stubSize)
	}

	var decode func(pc uint64, code []byte) (uint64, error)
	switch cpu {
	case types.CPUAmd64:
		decode = decodeAmd64
	case types.CPUArm64:
		decode = decodeArm64
	default:
		return nil, errors.Errorf("no stub decoder for %s", cpu)
	}

	for offset := 0; offset+stubSize <= len(code); offset += stubSize {
		pc := addr + uint64(offset)
		slot, err := decode(pc, code[offset:offset+stubSize])
		if err != nil {
			return stubs, errors.Wrapf(err, "stub at %#x", pc)
		}
		stubs = append(stubs, Stub{Address: pc, Slot: slot})
	}
	return
}

// jmp *disp(%rip)
func decodeAmd64(pc uint64, code []byte) (slot uint64, err error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode")
	}
	if inst.Op != x86asm.JMP {
		return 0, errors.Wrapf(ErrUnknownStub, "expected jmp but got %v", inst.Op)
	}
	mem, ok := inst.Args[0].(x86asm.Mem)
	if !ok || mem.Base != x86asm.RIP {
		return 0, errors.Wrapf(ErrUnknownStub, "expected a rip-relative jmp but got %v", inst)
	}
	return uint64(int64(pc) + int64(inst.Len) + mem.Disp), nil
}

// adrp x16, page; ldr x16, [x16, #off]; br x16
func decodeArm64(pc uint64, code []byte) (slot uint64, err error) {
	if len(code) < 12 {
		return 0, errors.Wrapf(ErrUnknownStub, "%d bytes is too short", len(code))
	}

	adrp, err := arm64asm.Decode(code[0:4])
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode")
	}
	if adrp.Op != arm64asm.ADRP {
		return 0, errors.Wrapf(ErrUnknownStub, "expected adrp but got %v", adrp.Op)
	}
	pcRel, ok := adrp.Args[1].(arm64asm.PCRel)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownStub, "unexpected adrp operand %v", adrp.Args[1])
	}
	page := uint64(int64(pc&^0xfff) + int64(pcRel))

	ldr, err := arm64asm.Decode(code[4:8])
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode")
	}
	if ldr.Op != arm64asm.LDR {
		return 0, errors.Wrapf(ErrUnknownStub, "expected ldr but got %v", ldr.Op)
	}
	// The immediate of MemImmediate is not exported; read it from the
	// unsigned offset encoding, which is scaled by 8 for 64-bit loads.
	raw := binary.LittleEndian.Uint32(code[4:8])
	if raw&0xffc00000 != 0xf9400000 {
		return 0, errors.Wrapf(ErrUnknownStub, "unexpected ldr form %v", ldr)
	}
	offset := uint64((raw>>10)&0xfff) << 3

	br, err := arm64asm.Decode(code[8:12])
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode")
	}
	if br.Op != arm64asm.BR {
		return 0, errors.Wrapf(ErrUnknownStub, "expected br but got %v", br.Op)
	}
	return page + offset, nil
}
