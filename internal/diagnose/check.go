// Package diagnose inspects the local workspace and the target host to
// explain why a deployment is not being served.
package diagnose

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"static-deploy/internal/deploy"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/pkg/ssh"
	"static-deploy/internal/report"
)

// Check is the outcome of one probe.
type Check struct {
	Name     string `json:"name"`
	Command  string `json:"command,omitempty"`
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Status   int    `json:"status,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Summary struct {
	Checks []Check `json:"checks"`
	Passed int     `json:"passed"`
	Failed int     `json:"failed"`
}

func (s *Summary) add(c Check) Check {
	s.Checks = append(s.Checks, c)
	if c.OK {
		s.Passed++
	} else {
		s.Failed++
	}
	return c
}

// Find returns the first check with the given name.
func (s *Summary) Find(name string) (Check, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// probe runs checks and reports each one as it finishes.
type probe struct {
	reporter report.Reporter
	logger   *logger.Logger
	summary  *Summary

	remote  deploy.Remote
	dialErr error
}

func newProbe(reporter report.Reporter, log *logger.Logger) *probe {
	if log == nil {
		log = logger.Nop()
	}
	return &probe{reporter: reporter, logger: log, summary: &Summary{}}
}

func (p *probe) connect(ctx context.Context, dial deploy.Dialer) {
	p.remote, p.dialErr = dial(ctx)
}

func (p *probe) close() {
	if p.remote != nil {
		p.remote.Close()
	}
}

// record adds a check that did not run a command.
func (p *probe) record(name string, ok bool, detail string) Check {
	return p.recordCheck(Check{Name: name}, ok, detail)
}

func (p *probe) recordCheck(c Check, ok bool, detail string) Check {
	c.OK = ok
	if ok {
		p.reporter.Success("%s", detail)
	} else {
		c.Error = detail
		p.reporter.Error("%s", detail)
	}
	p.logger.DiagnosticCheck(c.Name, ok)
	return p.summary.add(c)
}

// local runs a command on this machine and reports it.
func (p *probe) local(ctx context.Context, run deploy.RunFunc, name, commandLine string) Check {
	p.announce(name, commandLine)
	out, err := run(ctx, commandLine)
	c := Check{Name: name, Command: commandLine, ExitCode: out.ExitCode,
		Output: strings.TrimSpace(out.Stdout)}
	if err != nil {
		c.Error = firstNonEmpty(strings.TrimSpace(out.Stderr), err.Error())
	}
	return p.finish(c, err == nil)
}

// remoteCmd runs cmd on the target and reports it. Without a connection the
// check fails with the dial error.
func (p *probe) remoteCmd(ctx context.Context, name, cmd string) Check {
	p.announce(name, cmd)
	c := Check{Name: name, Command: cmd}
	if p.remote == nil {
		c.ExitCode = -1
		c.Error = fmt.Sprintf("no SSH connection: %v", p.dialErr)
		return p.finish(c, false)
	}
	out, err := p.remote.ExecuteCommand(ctx, cmd)
	if out != nil {
		c.ExitCode = out.ExitCode
		c.Output = out.Stdout
	}
	if err != nil {
		c.Error = firstNonEmpty(stderrOf(out), err.Error())
		if out == nil {
			c.ExitCode = -1
		}
	}
	return p.finish(c, err == nil)
}

// quiet runs cmd without announcing it, for listings printed as-is. Exit
// codes in okExit count as success, like grep's 1 for no match.
func (p *probe) quiet(ctx context.Context, name, cmd string, okExit ...int) Check {
	c := Check{Name: name, Command: cmd}
	if p.remote == nil {
		c.ExitCode = -1
		c.Error = fmt.Sprintf("no SSH connection: %v", p.dialErr)
		p.reporter.Error("Error: %s", c.Error)
		p.logger.DiagnosticCheck(name, false)
		return p.summary.add(c)
	}
	out, err := p.remote.ExecuteCommand(ctx, cmd)
	if out != nil {
		c.ExitCode = out.ExitCode
		c.Output = out.Stdout
	}
	c.OK = err == nil || (out != nil && slices.Contains(okExit, out.ExitCode))
	if !c.OK {
		c.Error = err.Error()
		if out == nil {
			c.ExitCode = -1
		}
		p.reporter.Error("Error: %s", firstNonEmpty(stderrOf(out), c.Error))
	}
	p.logger.DiagnosticCheck(name, c.OK)
	return p.summary.add(c)
}

func (p *probe) announce(name, cmd string) {
	p.reporter.Step("Testing: %s", name)
	p.reporter.Info("   Command: %s", cmd)
}

func (p *probe) finish(c Check, ok bool) Check {
	c.OK = ok
	if ok {
		p.reporter.Success("Success")
		if c.Output != "" {
			p.reporter.Info("   Output: %s", c.Output)
		}
	} else {
		p.reporter.Error("Failed (exit code: %d)", c.ExitCode)
		if c.Error != "" {
			p.reporter.Info("   Error: %s", c.Error)
		}
	}
	p.logger.DiagnosticCheck(c.Name, ok)
	return p.summary.add(c)
}

func stderrOf(out *ssh.CommandResult) string {
	if out == nil {
		return ""
	}
	return out.Stderr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return strings.Join(lines, "\n")
}
