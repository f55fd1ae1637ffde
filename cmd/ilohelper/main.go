// Package main is the entry point for ilohelper.
package main

import (
	"os"
)

func main() {
	os.Exit(exitCode(Execute()))
}
