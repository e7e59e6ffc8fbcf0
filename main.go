package main

import "github.com/audiolibrelab/antirec/cmd"

func main() {
	cmd.Execute()
}
