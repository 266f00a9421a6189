package rebind

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Finds the /proc/self/maps entry covering address:
// 559576822000-559576827000 r-xp 00002000 00:1a 4586   /usr/bin/cat
func osGetMemoryProtection(address uintptr) (protection memProtect, err error) {
	maps, err := os.Open("/proc/self/maps")
	if err != nil {
		err = errors.Wrap(err, "failed to read memory map")
		return
	}
	defer maps.Close()

	scanner := bufio.NewScanner(maps)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		startText, endText, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, startErr := strconv.ParseUint(startText, 16, 64)
		end, endErr := strconv.ParseUint(endText, 16, 64)
		if startErr != nil || endErr != nil {
			continue
		}
		if uint64(address) < start || uint64(address) >= end {
			continue
		}
		return protFromMapPerms(fields[1]), nil
	}
	if err = scanner.Err(); err != nil {
		err = errors.Wrap(err, "failed to read memory map")
		return
	}
	err = errors.Errorf("%#x is not mapped", address)
	return
}

func protFromMapPerms(perms string) (protection memProtect) {
	if strings.HasPrefix(perms, "r") {
		protection |= memProtectR
	}
	if len(perms) > 1 && perms[1] == 'w' {
		protection |= memProtectW
	}
	if len(perms) > 2 && perms[2] == 'x' {
		protection |= memProtectX
	}
	return
}
