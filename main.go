package main

import "github.com/deploymenttheory/go-rawimage/cmd"

func main() {
	cmd.Execute()
}
