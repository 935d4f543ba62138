// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemon runs the single-threaded event loop that multiplexes timer
// expiries, signal delivery, and control-socket connections, the way this
// codebase's command-line tools multiplex signals and I/O with a Go select
// loop instead of poll()/signalfd.
package daemon

import (
	"bufio"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/alluviumd/internal/clock"
	"grimm.is/alluviumd/internal/ctlproto"
	"grimm.is/alluviumd/internal/logging"
	"grimm.is/alluviumd/internal/metrics"
	"grimm.is/alluviumd/internal/registry"
)

// connReadDeadline bounds how long handleConn spends on one client: reading
// its request and writing the reply must both finish before it passes. A
// stalled client closes instead of blocking the event loop indefinitely.
const connReadDeadline = 5 * time.Second

// Daemon owns the registry, the expiry queue, and the control-socket
// listener, and runs the single event loop that drives all three.
type Daemon struct {
	reg    *registry.Registry
	queue  *registry.ExpiryQueue
	clk    clock.Clock
	logger *logging.Logger
	mx     *metrics.Metrics

	listener net.Listener
	connCh   chan net.Conn
}

// New constructs a Daemon bound to an already-listening control socket.
// reg should be empty; the event loop populates it as update requests
// arrive.
func New(reg *registry.Registry, clk clock.Clock, logger *logging.Logger, mx *metrics.Metrics, listener net.Listener) *Daemon {
	return &Daemon{
		reg:      reg,
		queue:    registry.NewExpiryQueue(),
		clk:      clk,
		logger:   logger,
		mx:       mx,
		listener: listener,
		connCh:   make(chan net.Conn),
	}
}

// Run accepts connections in a background goroutine and drives the event
// loop until a termination signal is received. It returns nil on a clean
// shutdown.
func (d *Daemon) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGTERM, syscall.SIGINT,
		syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2,
	)
	defer signal.Stop(sigCh)

	go d.acceptLoop()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	d.armTimer(timer)

	for {
		select {
		case sig := <-sigCh:
			if d.handleSignal(sig) {
				return nil
			}
			d.armTimer(timer)

		case conn := <-d.connCh:
			d.handleConn(conn)
			d.armTimer(timer)

		case <-timer.C:
			d.queue.Tick(d.clk.Now(), d.reg)
			d.armTimer(timer)
		}
	}
}

// acceptLoop feeds accepted connections into connCh. The daemon serves one
// client at a time: a connection accepted while the event loop is busy with
// another is refused outright, not queued, since connCh is unbuffered and
// the send is non-blocking. Backpressure here is by refusal, never by
// buffering a backlog of waiting clients.
func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		select {
		case d.connCh <- conn:
		default:
			conn.Close()
		}
	}
}

// armTimer resets timer to fire at the queue's next rounded wakeup, or
// leaves a long backstop duration armed if the queue is empty.
func (d *Daemon) armTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d.nextWakeup())
}

// nextWakeup returns the queue's rounded next-expiry duration, or a long
// backstop duration if the queue is empty (no timer should really be armed).
func (d *Daemon) nextWakeup() time.Duration {
	if wakeup, ok := d.queue.NextWakeup(d.clk.Now()); ok {
		return wakeup
	}
	return time.Hour
}

// handleSignal applies one signal's effect and reports whether the loop
// should exit.
func (d *Daemon) handleSignal(sig os.Signal) (shutdown bool) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		d.logger.Info("shutting down", "signal", sig.String())
		return true
	case syscall.SIGHUP:
		d.logger.Info("snapshot requested")
		for _, row := range d.reg.Snapshot(d.clk.Now()) {
			d.logger.Info("set state", "set", row.Set, "domain", row.Domain, "ips", row.IPs, "expires", row.Expires)
		}
		d.queue.Rebuild(d.reg)
	case syscall.SIGUSR1:
		d.logger.Info("forced reload requested")
		d.reg.ForceReloadAll()
	case syscall.SIGUSR2:
		d.logger.Info("forced renew requested")
		d.reg.ForceRenewAll()
		d.queue.Rebuild(d.reg)
	}
	return false
}

// handleConn parses and applies exactly one request, then closes conn.
// SIGPIPE delivery is a non-issue here: Go reports a write to a closed
// socket as an error return from Write, never as a process signal.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connReadDeadline))

	req, err := ctlproto.Parse(bufio.NewReader(conn))
	if err != nil {
		d.mx.ObserveControlRequest("malformed")
		writeString(conn, ctlproto.Reply(err))
		return
	}

	switch req.Kind {
	case ctlproto.KindDrop:
		if !d.reg.Drop(req.SetName) {
			d.mx.ObserveControlRequest("not_found")
			writeString(conn, ctlproto.ReplyNotFound(req.SetName))
			return
		}
		d.queue.Rebuild(d.reg)
		d.mx.ObserveControlRequest("ok")
		writeString(conn, ctlproto.ReplyOK)

	case ctlproto.KindUpdate:
		if err := d.reg.Update(req.SetName, req.Domains); err != nil {
			d.mx.ObserveControlRequest("error")
			writeString(conn, ctlproto.ReplyError(err.Error()))
			return
		}
		d.queue.Rebuild(d.reg)
		d.mx.ObserveControlRequest("ok")
		writeString(conn, ctlproto.ReplyOK)
	}
}

func writeString(conn net.Conn, s string) {
	if s == "" {
		return
	}
	_, _ = conn.Write([]byte(s))
}
