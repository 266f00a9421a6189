// Command standalone_test rebinds real libc symbols in its own process. It
// only runs on darwin with cgo enabled.
package main

import (
	"fmt"
	"os"
)

type namedTest struct {
	name string
	test func() error
}

func runTests(tests []namedTest) bool {
	fmt.Printf("Running standalone tests...\n")
	success := true
	for _, test := range tests {
		if err := test.test(); err != nil {
			fmt.Printf("Test %v failed: %v\n", test.name, err)
			success = false
		}
	}
	return success
}

func main() {
	if !runTests([]namedTest{
		{"TestImageNamesFromCallback", TestImageNamesFromCallback},
		{"TestSlotsListGetpid", TestSlotsListGetpid},
		{"TestRebindGetpid", TestRebindGetpid},
		{"TestRebindChains", TestRebindChains},
	}) {
		fmt.Printf("Tests failed\n")
		os.Exit(1)
	}
}
