// Package main provides the onnx-native CLI.
package main

import (
	"fmt"
	"io"
	"os"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 2
	}

	var err error
	switch args[0] {
	case "split":
		err = cmdSplit(args[1:], stdout)
	case "rehydrate":
		err = cmdRehydrate(args[1:], stdout)
	case "inspect":
		err = cmdInspect(args[1:], stdout)
	case "verify":
		err = cmdVerify(args[1:], stdout)
	case "run":
		err = cmdRun(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "onnx-native %s\n", version)
	case "help", "-h", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "onnx-native - split ONNX weights into an external file and load them back")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  split      Move large initializers of a model into a weight file")
	fmt.Fprintln(w, "  rehydrate  Write a self-contained model from a split graph")
	fmt.Fprintln(w, "  inspect    Print model info and initializer layout as JSON")
	fmt.Fprintln(w, "  verify     Check that a split graph restores the original weights")
	fmt.Fprintln(w, "  run        Rehydrate in memory and run a sentiment model")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'onnx-native <command> -h' for command flags.")
}
