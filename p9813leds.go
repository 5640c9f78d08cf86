package main

import (
	"fmt"
	"os"

	"lautenbacher.net/p9813leds/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
