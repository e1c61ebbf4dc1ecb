package main

import "github.com/oshokin/alarm-listener/cmd/alarm-listener/cmd"

func main() {
	cmd.Execute()
}
