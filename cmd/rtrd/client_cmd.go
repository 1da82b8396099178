package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/bgpfix/rtrd/internal/client"
	"github.com/bgpfix/rtrd/internal/config"
)

func runClient(args []string) error {
	f := pflag.NewFlagSet("rtrd client", pflag.ExitOnError)
	f.SortFlags = false
	addr := f.String("addr", "", "dial this TCP address instead of spawning a server subprocess")
	spawn := f.String("spawn", "", "server command to spawn and talk to over stdio (e.g. \"rtrd server --store-dir /var/lib/rtrd\")")
	f.String("log", "info", "log level (debug/info/warn/error/disabled)")
	f.Usage = func() { f.PrintDefaults() }

	k, err := config.Load(f, args)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(k.String("log"))
	if err != nil {
		return err
	}

	switch {
	case *addr != "":
		conn, err := net.Dial("tcp", *addr)
		if err != nil {
			return fmt.Errorf("client: dial %s: %w", *addr, err)
		}
		defer conn.Close()
		return client.Run(conn, log)

	case *spawn != "":
		return runSpawned(*spawn, log)

	default:
		return fmt.Errorf("client: either --addr or --spawn is required")
	}
}

// spawnedConn adapts a subprocess's stdin/stdout pipes into the
// io.ReadWriter the client expects.
type spawnedConn struct {
	io.Reader
	io.Writer
}

func runSpawned(command string, log zerolog.Logger) error {
	cmd := exec.Command("sh", "-c", command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("client: spawn %q: %w", command, err)
	}
	defer cmd.Wait()
	defer stdin.Close()

	return client.Run(spawnedConn{Reader: stdout, Writer: stdin}, log)
}
