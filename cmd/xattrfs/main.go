package main

import "github.com/deploymenttheory/go-xattrfs/cmd"

func main() {
	cmd.Execute()
}
