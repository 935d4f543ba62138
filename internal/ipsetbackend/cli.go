// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ipsetbackend

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"grimm.is/alluviumd/internal/errors"
)

// CLI drives the `ipset` binary the same way this codebase's
// internal/firewall package drives `nft`: pipe a scripted batch into the
// tool's stdin rather than shelling out once per element. CreateEmpty and Add
// calls accumulate into a pending "ipset restore" batch per set name; the
// batch is flushed (create + N adds + commit) the first time that name is
// swapped or destroyed.
type CLI struct {
	// Timeout bounds each invocation of the ipset helper so a wedged helper
	// can't hang the daemon forever.
	Timeout time.Duration

	pending map[string]*strings.Builder
}

// NewCLI returns a CLI backend with a sane default timeout.
func NewCLI() *CLI {
	return &CLI{
		Timeout: 10 * time.Second,
		pending: make(map[string]*strings.Builder),
	}
}

// CreateEmpty opens a new restore batch for name. The actual `ipset restore`
// invocation is deferred until Swap or Destroy flushes it, so CreateEmpty and
// all the Add calls for one reload share a single process invocation.
func (c *CLI) CreateEmpty(name, hashType string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "create %s %s -exist\n", name, hashType)
	c.pending[name] = &b
	return nil
}

// Add appends an element to name's pending batch.
func (c *CLI) Add(name string, ip net.IP) error {
	b, ok := c.pending[name]
	if !ok {
		return errors.Errorf(errors.KindInternal, "add to %s before create", name)
	}
	fmt.Fprintf(b, "add %s %s\n", name, ip.String())
	return nil
}

// Swap flushes a's pending batch, then atomically exchanges a and b's
// contents in the kernel with a single `ipset swap`.
func (c *CLI) Swap(a, b string) error {
	if err := c.flush(a); err != nil {
		return err
	}
	return c.run("swap", a, b)
}

// Destroy flushes name's pending batch (a no-op if it was already flushed by
// Swap) and removes the set from the kernel.
func (c *CLI) Destroy(name string) error {
	if err := c.flush(name); err != nil {
		return err
	}
	return c.run("destroy", name)
}

// flush runs the accumulated "create\nadd...\ncommit\n" batch for name
// through `ipset restore`.
func (c *CLI) flush(name string) error {
	b, ok := c.pending[name]
	if !ok {
		return nil
	}
	delete(c.pending, name)
	b.WriteString("commit\n")

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ipset", "restore")
	cmd.Stdin = strings.NewReader(b.String())
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "ipset restore failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

func (c *CLI) run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ipset", args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "ipset %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(output)))
	}
	return nil
}
