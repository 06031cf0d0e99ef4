package utils

import (
	"fmt"
	"net"
	"strings"
)

func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}
	return nil
}

// ValidateHost accepts an IP literal or an RFC 1123 host name.
func ValidateHost(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("host name longer than 253 characters: %s", host)
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("invalid host name: %s", host)
		}
		for _, char := range label {
			if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-') {
				return fmt.Errorf("invalid character %q in host name: %s", char, host)
			}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("host name labels cannot start or end with a hyphen: %s", host)
		}
	}
	return nil
}

func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be within 1-65535: %d", port)
	}
	return nil
}

// ValidateUsername follows the POSIX portable user name rules.
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("user name cannot be empty")
	}
	if len(name) > 32 {
		return fmt.Errorf("user name longer than 32 characters: %s", name)
	}
	for i, char := range name {
		ok := (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') ||
			char == '_' || char == '.' || (char == '-' && i > 0)
		if !ok {
			return fmt.Errorf("invalid character %q in user name: %s", char, name)
		}
	}
	return nil
}

// ValidateOwner checks a chown spec of the form user or user:group.
func ValidateOwner(owner string) error {
	parts := strings.Split(owner, ":")
	if len(parts) > 2 {
		return fmt.Errorf("owner must be user or user:group: %s", owner)
	}
	for _, p := range parts {
		if err := ValidateUsername(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRemotePath requires an absolute path free of characters that would
// change meaning inside a shell word or a glob.
func ValidateRemotePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("remote path must be absolute: %s", p)
	}
	if strings.ContainsAny(p, "*?[]\n\r\t") {
		return fmt.Errorf("remote path contains glob or control characters: %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("remote path must not contain ..: %s", p)
		}
	}
	return nil
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, char := range s {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') ||
			strings.ContainsRune("@%+=:,./_-", char)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
