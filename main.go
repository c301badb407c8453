package main

import "github.com/tkv-io/tKV/cmd"

func main() {
	cmd.Execute()
}
