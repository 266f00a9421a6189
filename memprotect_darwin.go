//go:build darwin && cgo

package rebind

/*
#include <stdint.h>
#include <mach/mach.h>
#include <mach/mach_vm.h>

static kern_return_t rebind_get_protection(uintptr_t address, int *protection) {
	mach_vm_address_t region = address;
	mach_vm_size_t size = 0;
	vm_region_basic_info_data_64_t info;
	mach_msg_type_number_t count = VM_REGION_BASIC_INFO_COUNT_64;
	mach_port_t object = MACH_PORT_NULL;
	kern_return_t kr = mach_vm_region(mach_task_self(), &region, &size,
		VM_REGION_BASIC_INFO_64, (vm_region_info_t)&info, &count, &object);
	if (kr != KERN_SUCCESS) {
		return kr;
	}
	// mach_vm_region moves forward to the next region if address is unmapped.
	if (region > address) {
		return KERN_INVALID_ADDRESS;
	}
	*protection = info.protection;
	return KERN_SUCCESS;
}
*/
import "C"

import (
	"github.com/pkg/errors"
)

// VM_PROT_READ, VM_PROT_WRITE and VM_PROT_EXECUTE share memProtect's bits.
func osGetMemoryProtection(address uintptr) (protection memProtect, err error) {
	var prot C.int
	if kr := C.rebind_get_protection(C.uintptr_t(address), &prot); kr != C.KERN_SUCCESS {
		err = errors.Errorf("mach_vm_region %#x: kern_return_t %d", address, int(kr))
		return
	}
	protection = memProtect(prot) & (memProtectR | memProtectW | memProtectX)
	return
}
