package main

import "github.com/androidcarpooling/AI-CCTV-Detection/cmd"

func main() {
	cmd.Execute()
}
