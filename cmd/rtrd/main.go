package main

import (
	"fmt"
	"os"
)

// rtrd is a single binary dispatching on its first positional argument
// into one of three modes (spec §6.4): builder, server, client.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	mode, args := os.Args[1], os.Args[2:]
	var err error
	switch mode {
	case "builder":
		err = runBuilder(args)
	case "server":
		err = runServer(args)
	case "client":
		err = runClient(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "rtrd: unknown mode %q\n", mode)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "rtrd %s: %v\n", mode, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rtrd MODE [OPTIONS]

Modes:
  builder   build a new version from a validated-ROA directory
  server    serve one RTR session over stdio, or many over TCP
  client    debug client: connect, reset query, print every PDU
`)
}
