package main

import "github.com/MeKo-Tech/tslatency/cmd/tslatency/cmd"

func main() {
	cmd.Execute()
}
