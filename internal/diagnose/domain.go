package diagnose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/report"
	"static-deploy/pkg/utils"
)

const (
	CheckDNS           = "DNS resolution"
	CheckEnabledSites  = "Enabled sites"
	CheckDomainConfig  = "Domain configuration"
	CheckDocumentRoots = "Document roots"
	CheckWebRoot       = "Web root contents"
)

// Resolver looks up the addresses of a host name.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DomainChecker verifies that a domain reaches the target and that the web
// server on the target is configured to serve it.
type DomainChecker struct {
	cfg      *config.Config
	dial     deploy.Dialer
	resolver Resolver
	reporter report.Reporter
	logger   *logger.Logger
}

func NewDomainChecker(cfg *config.Config, dial deploy.Dialer, reporter report.Reporter, log *logger.Logger) *DomainChecker {
	if log == nil {
		log = logger.Nop()
	}
	return &DomainChecker{
		cfg:      cfg,
		dial:     dial,
		resolver: net.DefaultResolver,
		reporter: reporter,
		logger:   log,
	}
}

// SetResolver replaces the system resolver.
func (c *DomainChecker) SetResolver(r Resolver) {
	c.resolver = r
}

func (c *DomainChecker) sudo(cmd string) string {
	if c.cfg.Deploy.UseSudo {
		return "sudo " + cmd
	}
	return cmd
}

func (c *DomainChecker) sitesDir() string {
	return utils.ShellQuote(strings.TrimRight(c.cfg.Diagnose.SitesEnabledDir, "/") + "/")
}

// Run checks domain, falling back to the configured one when empty.
func (c *DomainChecker) Run(ctx context.Context, domain string) (*Summary, error) {
	if domain == "" {
		domain = c.cfg.Diagnose.Domain
	}
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, errors.New("no domain given, pass --domain or set diagnose.domain")
	}
	if err := utils.ValidateHost(domain); err != nil {
		return nil, err
	}

	p := newProbe(c.reporter, c.logger)
	c.reporter.Header("Domain Configuration Check")

	c.reporter.Section("1. DNS Resolution for %s", domain)
	c.checkDNS(ctx, p, domain)
	if err := ctx.Err(); err != nil {
		return p.summary, err
	}

	c.logger.SSHConnectionAttempt("domain-check", c.cfg.Login())
	p.connect(ctx, c.dial)
	defer p.close()

	c.reporter.Section("2. %s configuration on server", c.cfg.Deploy.Service)
	if res := p.quiet(ctx, CheckEnabledSites, c.sudo("ls -la "+c.sitesDir())); res.OK {
		c.reporter.Info("   Enabled sites:")
		c.reporter.Info("%s", indent(res.Output))
	}

	c.reporter.Section("3. Looking for domain-specific configuration")
	refs := p.quiet(ctx, CheckDomainConfig, c.sudo(fmt.Sprintf("grep -rF %s %s", utils.ShellQuote(domain), c.sitesDir())), 1)
	switch {
	case refs.Output != "":
		c.reporter.Success("Found domain references:")
		c.reporter.Info("%s", indent(refs.Output))
	case refs.OK:
		c.reporter.Warn("No domain-specific configuration found")
	}

	c.reporter.Section("4. Checking document roots")
	roots := p.quiet(ctx, CheckDocumentRoots, c.sudo(fmt.Sprintf("grep -r %s %s", utils.ShellQuote("root "), c.sitesDir()))+" | grep -v '#'", 1)
	if roots.OK {
		c.reporter.Info("   Document roots configured:")
		c.reporter.Info("%s", indent(roots.Output))
		if !strings.Contains(roots.Output, c.cfg.Paths.RemoteDir) {
			c.reporter.Warn("No site serves %s", c.cfg.Paths.RemoteDir)
		}
	}

	webRoot := strings.TrimRight(c.cfg.Diagnose.WebRoot, "/") + "/"
	c.reporter.Section("5. Contents of %s", webRoot)
	if res := p.quiet(ctx, CheckWebRoot, "ls -la "+utils.ShellQuote(webRoot)); res.OK {
		c.reporter.Info("%s", indent(res.Output))
	}

	c.reporter.Info("\n%s", strings.Repeat("=", 50))
	c.reporter.Info("Next Steps:")
	c.reporter.Info("1. If DNS points elsewhere, update your DNS records")
	c.reporter.Info("2. If %s serves from a different directory, update its config", c.cfg.Deploy.Service)
	c.reporter.Info("3. Check if there's a separate config file for the domain")
	c.reporter.Info("4. Clear any CDN/CloudFlare cache if applicable")
	return p.summary, nil
}

func (c *DomainChecker) checkDNS(ctx context.Context, p *probe, domain string) {
	addrs, err := c.resolver.LookupHost(ctx, domain)
	if err != nil {
		p.record(CheckDNS, false, fmt.Sprintf("DNS lookup failed: %v", err))
		return
	}
	c.reporter.Info("   Domain resolves to: %s", strings.Join(addrs, ", "))

	host := c.cfg.Target.Host
	expected := []string{host}
	if utils.ValidateIP(host) != nil {
		expected, err = c.resolver.LookupHost(ctx, host)
		if err != nil {
			p.record(CheckDNS, false, fmt.Sprintf("Could not resolve target host %s: %v", host, err))
			return
		}
	}

	check := Check{Name: CheckDNS, Output: strings.Join(addrs, ", ")}
	if overlaps(addrs, expected) {
		p.recordCheck(check, true, "Domain points to your server")
		return
	}
	p.recordCheck(check, false, fmt.Sprintf("Domain points to a different IP (not %s)", host))
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		ipx := net.ParseIP(x)
		for _, y := range b {
			if x == y || (ipx != nil && ipx.Equal(net.ParseIP(y))) {
				return true
			}
		}
	}
	return false
}
