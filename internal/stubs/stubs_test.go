package stubs

import (
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
)

const stubsAddr = 0x100003f80

func arm64Code(words ...uint32) []byte {
	code := make([]byte, 4*len(words))
	for i, word := range words {
		binary.LittleEndian.PutUint32(code[i*4:], word)
	}
	return code
}

func TestResolveAmd64(t *testing.T) {
	code := []byte{
		0xff, 0x25, 0x00, 0x10, 0x00, 0x00, // jmp *0x1000(%rip)
		0xff, 0x25, 0xfa, 0x0f, 0x00, 0x00, // jmp *0xffa(%rip)
	}
	stubs, err := Resolve(types.CPUAmd64, stubsAddr, code, 6)
	if err != nil {
		t.Fatal(err)
	}
	expected := []Stub{
		{Address: stubsAddr, Slot: stubsAddr + 6 + 0x1000},
		{Address: stubsAddr + 6, Slot: stubsAddr + 12 + 0xffa},
	}
	if len(stubs) != len(expected) {
		t.Fatalf("Expected %v stubs but got %v", len(expected), len(stubs))
	}
	for i := range expected {
		if stubs[i] != expected[i] {
			t.Errorf("Expected %#v but got %#v", expected[i], stubs[i])
		}
	}
}

func TestResolveArm64(t *testing.T) {
	code := arm64Code(
		0xb0000010, // adrp x16, #0x1000
		0xf9400610, // ldr x16, [x16, #8]
		0xd61f0200, // br x16
	)
	stubs, err := Resolve(types.CPUArm64, stubsAddr, code, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(stubs) != 1 {
		t.Fatalf("Expected 1 stub but got %v", len(stubs))
	}
	if expected := uint64(0x100004008); stubs[0].Slot != expected {
		t.Errorf("Expected slot %#x but got %#x", expected, stubs[0].Slot)
	}
}

func TestResolveRejectsOtherCode(t *testing.T) {
	// mov x0, x1; ret; nop
	code := arm64Code(0xaa0103e0, 0xd65f03c0, 0xd503201f)
	_, err := Resolve(types.CPUArm64, stubsAddr, code, 12)
	if errors.Cause(err) != ErrUnknownStub {
		t.Errorf("Expected ErrUnknownStub but got %v", err)
	}

	// ret
	_, err = Resolve(types.CPUAmd64, stubsAddr, []byte{0xc3, 0x90, 0x90, 0x90, 0x90, 0x90}, 6)
	if errors.Cause(err) != ErrUnknownStub {
		t.Errorf("Expected ErrUnknownStub but got %v", err)
	}
}

func TestResolveRejectsBadStubSize(t *testing.T) {
	if _, err := Resolve(types.CPUArm64, stubsAddr, nil, 0); err == nil {
		t.Error("Expected an error")
	}
	if _, err := Resolve(types.CPUI386, stubsAddr, nil, 6); err == nil {
		t.Error("Expected an error")
	}
}
