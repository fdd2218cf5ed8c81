// Package uri parses and resolves the two iiod context URI schemes: ip:
// (TCP, with DNS-SD discovery when the host is empty) and usb: (USB bulk
// transport, with bus scan when the body is empty).
package uri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goiiod/iiod/internal/ierrors"
)

// DefaultPort is the iiod daemon's default TCP port.
const DefaultPort = 30431

// Kind distinguishes the two URI schemes.
type Kind int

const (
	KindIP Kind = iota
	KindUSB
)

// Target is a fully-resolved connection target.
type Target struct {
	Kind Kind

	// IP fields.
	Host string
	Port int

	// USB fields.
	Bus       int
	Address   int
	Interface int
}

// ScanResult is one entry returned by a discovery/scan pass: a
// human-readable description and the URI that would reach it.
type ScanResult struct {
	Description string
	URI         string
}

// Resolver performs the discovery a URI with an empty body requires.
// Production callers wire DNS-SD (ip:) and libusb bus enumeration (usb:);
// tests supply a fake with canned results.
type Resolver interface {
	DiscoverIP() ([]ScanResult, error)
	ScanUSB() ([]ScanResult, error)
}

// Parse parses uri into a Target, invoking resolver for the empty-body
// discovery case. Both schemes require discovery to yield exactly one
// result when the caller didn't name one explicitly.
func Parse(raw string, resolver Resolver) (Target, error) {
	switch {
	case strings.HasPrefix(raw, "ip:"):
		return parseIP(strings.TrimPrefix(raw, "ip:"), resolver)
	case strings.HasPrefix(raw, "usb:"):
		return parseUSB(strings.TrimPrefix(raw, "usb:"), resolver)
	default:
		return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, fmt.Sprintf("unsupported URI scheme: %q", raw))
	}
}

func parseIP(body string, resolver Resolver) (Target, error) {
	if body == "" {
		if resolver == nil {
			return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, "ip: discovery requires a resolver")
		}
		results, err := resolver.DiscoverIP()
		if err != nil {
			return Target{}, err
		}
		if len(results) != 1 {
			return Target{}, ierrors.NewError("Parse", ierrors.KindNotFound, fmt.Sprintf("DNS-SD discovery found %d responders, need exactly 1", len(results)))
		}
		return Parse(results[0].URI, resolver)
	}

	host := body
	port := DefaultPort
	if i := strings.LastIndex(body, ":"); i >= 0 {
		host = body[:i]
		p, err := strconv.Atoi(body[i+1:])
		if err != nil {
			return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, "invalid port in ip: URI")
		}
		port = p
	}
	return Target{Kind: KindIP, Host: host, Port: port}, nil
}

func parseUSB(body string, resolver Resolver) (Target, error) {
	if body == "" {
		if resolver == nil {
			return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, "usb: scan requires a resolver")
		}
		results, err := resolver.ScanUSB()
		if err != nil {
			return Target{}, err
		}
		if len(results) != 1 {
			return Target{}, ierrors.NewError("Parse", ierrors.KindNotFound, fmt.Sprintf("USB bus scan found %d devices, need exactly 1", len(results)))
		}
		return Parse(results[0].URI, resolver)
	}

	parts := strings.Split(body, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, "usb: URI must be bus.address[.interface]")
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return Target{}, ierrors.NewError("Parse", ierrors.KindInvalidArgument, "usb: URI components must be 0..255")
		}
		nums[i] = n
	}

	t := Target{Kind: KindUSB, Bus: nums[0], Address: nums[1]}
	if len(nums) == 3 {
		t.Interface = nums[2]
	}
	return t, nil
}

// String renders t back into its canonical URI form.
func (t Target) String() string {
	switch t.Kind {
	case KindIP:
		return fmt.Sprintf("ip:%s:%d", t.Host, t.Port)
	case KindUSB:
		return fmt.Sprintf("usb:%d.%d.%d", t.Bus, t.Address, t.Interface)
	default:
		return ""
	}
}
