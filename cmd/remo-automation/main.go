package main

import "github.com/oshokin/remo-automation/cmd/remo-automation/cmd"

func main() {
	cmd.Execute()
}
