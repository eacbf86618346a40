package main

import (
	"fmt"
	"os"
)

func main() {
	if err := buildRootCmd(os.LookupEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pointd:", err)
		os.Exit(1)
	}
}
