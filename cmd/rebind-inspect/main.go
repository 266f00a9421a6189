package main

import "github.com/kstenerud/go-rebind/cmd/rebind-inspect/cmd"

func main() {
	cmd.Execute()
}
