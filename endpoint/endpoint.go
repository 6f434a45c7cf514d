// Package endpoint holds the IPv4 address + port value type shared by every
// socket constructor in this module.
package endpoint

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// errPort is the sentinel port value that marks a parse failure.
const errPort = 0xffffffff

// Endpoint is a 32-bit IPv4 host-order address and a 16-bit port.
type Endpoint struct {
	ipv4 uint32
	port uint32
}

// New builds an Endpoint from a host-order IPv4 address and a port.
func New(ipv4 uint32, port uint16) Endpoint {
	return Endpoint{ipv4: ipv4, port: uint32(port)}
}

// Ipv4 returns the host-order IPv4 address.
func (e Endpoint) Ipv4() uint32 { return e.ipv4 }

// Port returns the port number.
func (e Endpoint) Port() uint16 { return uint16(e.port) }

// Valid reports whether the endpoint was constructed or parsed successfully.
func (e Endpoint) Valid() bool { return e.port != errPort }

// Ipv4ToString formats the address as dotted decimal.
func (e Endpoint) Ipv4ToString() string {
	return strconv.Itoa(int(e.ipv4>>24&0xff)) + "." +
		strconv.Itoa(int(e.ipv4>>16&0xff)) + "." +
		strconv.Itoa(int(e.ipv4>>8&0xff)) + "." +
		strconv.Itoa(int(e.ipv4&0xff))
}

// PortToString formats the port as decimal.
func (e Endpoint) PortToString() string {
	return strconv.Itoa(int(e.port))
}

// String implements fmt.Stringer as "a.b.c.d:port".
func (e Endpoint) String() string {
	if !e.Valid() {
		return "<invalid endpoint>"
	}
	return e.Ipv4ToString() + ":" + e.PortToString()
}

// StringToIpv4 parses dotted-decimal IPv4 into e, validating each octet is
// in [0,255] and that octets are separated by '.'. On failure it sets the
// port sentinel and returns -1.
func (e *Endpoint) StringToIpv4(buf string) int {
	parts := strings.Split(buf, ".")
	if len(parts) != 4 {
		e.port = errPort
		return -1
	}
	var octets [4]uint32
	consumed := 0
	for i, p := range parts {
		if p == "" {
			e.port = errPort
			return -1
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			e.port = errPort
			return -1
		}
		octets[i] = uint32(n)
		consumed += len(p)
		if i < 3 {
			consumed++ // the '.' separator
		}
	}
	e.ipv4 = octets[3] | octets[2]<<8 | octets[1]<<16 | octets[0]<<24
	return consumed
}

// StringToPort parses a decimal port in [0,65535]. On failure it sets the
// port sentinel and returns -1.
func (e *Endpoint) StringToPort(buf string) int {
	end := len(buf)
	for i, c := range buf {
		if c < '0' || c > '9' {
			end = i
			break
		}
	}
	if end == 0 {
		e.port = errPort
		return -1
	}
	p, err := strconv.Atoi(buf[:end])
	if err != nil || p < 0 || p > 65535 {
		e.port = errPort
		return -1
	}
	e.port = uint32(p)
	return end
}

// Parse parses a "host:port" string into an Endpoint.
func Parse(s string) (Endpoint, error) {
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return Endpoint{port: errPort}, err
	}
	var e Endpoint
	if n := e.StringToIpv4(host); n < 0 {
		return Endpoint{port: errPort}, &ParseError{Input: s, Reason: "invalid ipv4 address"}
	}
	if n := e.StringToPort(portStr); n < 0 {
		return Endpoint{port: errPort}, &ParseError{Input: s, Reason: "invalid port"}
	}
	return e, nil
}

func splitHostPort(s string) (host, port string, err error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", &ParseError{Input: s, Reason: "missing ':' separator"}
	}
	return s[:i], s[i+1:], nil
}

// ParseError describes why Parse failed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return "endpoint: cannot parse " + strconv.Quote(e.Input) + ": " + e.Reason
}

// ToSockaddr converts the endpoint into the form accept/bind/connect need.
func (e Endpoint) ToSockaddr() unix.SockaddrInet4 {
	sa := unix.SockaddrInet4{Port: int(e.port)}
	sa.Addr[0] = byte(e.ipv4 >> 24)
	sa.Addr[1] = byte(e.ipv4 >> 16)
	sa.Addr[2] = byte(e.ipv4 >> 8)
	sa.Addr[3] = byte(e.ipv4)
	return sa
}

// FromSockaddr builds an Endpoint from a kernel-returned sockaddr_in.
func FromSockaddr(sa *unix.SockaddrInet4) Endpoint {
	a := sa.Addr
	ipv4 := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	return New(ipv4, uint16(sa.Port))
}
