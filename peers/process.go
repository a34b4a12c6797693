// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package peers

import (
	"fmt"
	"os/exec"

	"github.com/creachadair/taskgroup"
	"github.com/doriath/command-autocomplete-protocol/channel"
	"github.com/doriath/command-autocomplete-protocol/handler"
)

// A Process is an endpoint connected to the standard input and output of a
// child process. The child is expected only to answer requests: any request
// it sends is refused with INVALID_REQUEST.
type Process struct {
	*Endpoint
	cmd   *exec.Cmd
	drain *taskgroup.Single[error]
}

// Start starts cmd with its standard input and output connected to a new
// endpoint. The caller must not set cmd.Stdin or cmd.Stdout. The caller must
// call Stop when finished with the process.
func Start(cmd *exec.Cmd) (*Process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	ep := New(channel.IO(stdout, stdin))

	// Responses from the child are delivered only while its receiver is
	// drained.
	drain := taskgroup.Go(func() error { return handler.Drain(ep.R) })
	return &Process{Endpoint: ep, cmd: cmd, drain: drain}, nil
}

// Pid returns the process ID of the child.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Stop shuts down the connection to the child and waits for it to exit. It
// sends a shutdown request and waits for its acknowledgement, unless the
// connection has already closed, then closes the endpoint.
//
// Stop reports connErr if the connection failed because of a protocol or
// transport error, and exitErr if the child did not exit successfully. If the
// connection failed, the child is killed rather than waiting for it to exit
// on its own.
func (p *Process) Stop() (connErr, exitErr error) {
	if sp, err := p.S.Shutdown(); err == nil {
		sp.Wait(nil) // an error here is reported below, if it matters
	}
	p.Close()

	if err := p.drain.Wait(); err != nil {
		connErr = err
		p.cmd.Process.Kill()
	}
	if err := p.Wait(); err != nil {
		if connErr == nil {
			connErr = err
		}
		p.cmd.Process.Kill()
	}
	return connErr, p.cmd.Wait()
}
