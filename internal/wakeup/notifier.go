package wakeup

import (
	"context"
	"net"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Notifier is the builder's side of the bus: it discovers every live
// server's socket by glob and sends each one a payload (spec §4.2 step
// 7). Missing or unreachable recipients are ignored — the builder is
// stateless about which servers exist.
type Notifier struct {
	dir     string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewNotifier returns a Notifier rooted at dir, fanning out at most
// rps datagrams per second so a large server fleet doesn't turn one
// builder run into a send burst.
func NewNotifier(dir string, rps float64, log zerolog.Logger) *Notifier {
	if rps <= 0 {
		rps = 100
	}
	return &Notifier{dir: dir, limiter: rate.NewLimiter(rate.Limit(rps), 1), log: log}
}

// NotifyAll sends payload to every "wakeup.*" socket found in the
// notifier's directory. It returns the number of sockets it
// successfully wrote to; per-recipient errors are logged, not
// returned, since a dead server is the expected common case (spec §4.2
// step 7, §4.4).
func (n *Notifier) NotifyAll(ctx context.Context, payload []byte) int {
	matches, err := filepath.Glob(filepath.Join(n.dir, "wakeup.*"))
	if err != nil {
		n.log.Warn().Err(err).Msg("wakeup: could not glob for live servers")
		return 0
	}

	sent := 0
	for _, path := range matches {
		if err := n.limiter.Wait(ctx); err != nil {
			return sent
		}
		if err := n.send(path, payload); err != nil {
			n.log.Debug().Err(err).Str("socket", path).Msg("wakeup: recipient unreachable, ignoring")
			continue
		}
		sent++
	}
	return sent
}

func (n *Notifier) send(path string, payload []byte) error {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}
