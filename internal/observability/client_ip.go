package observability

import (
	"fmt"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const clientIPKey = "client_ip"

// ClientIPResolver picks the caller address used for rate limiting, audit and request logs.
// The proxy header is only read when the connecting peer is a trusted proxy. X-Forwarded-For is
// walked right to left and the first hop that is not itself a trusted proxy is the client, so
// entries a client prepends to the chain are never used.
type ClientIPResolver struct {
	header  string
	trusted []*net.IPNet
}

// NewClientIPResolver parses trusted proxy addresses and CIDR ranges.
func NewClientIPResolver(header string, trusted []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{header: header}
	for _, entry := range trusted {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy range %q: %w", entry, err)
			}
			r.trusted = append(r.trusted, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy address %q", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return r, nil
}

// Resolve returns the client address for the request.
func (r *ClientIPResolver) Resolve(c *fiber.Ctx) string {
	remote := c.Context().RemoteIP()
	if r.header == "" || !r.isTrusted(remote) {
		return remote.String()
	}
	raw := c.Get(r.header)
	if raw == "" {
		return remote.String()
	}

	hops := strings.Split(raw, ",")
	if !strings.EqualFold(r.header, fiber.HeaderXForwardedFor) {
		// single-value headers such as X-Real-IP are overwritten by the edge
		hops = hops[len(hops)-1:]
	}

	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip
		if !r.isTrusted(ip) {
			break
		}
	}
	return client.String()
}

// Handler stores the resolved address for ClientIP.
func (r *ClientIPResolver) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(clientIPKey, r.Resolve(c))
		return c.Next()
	}
}

func (r *ClientIPResolver) isTrusted(ip net.IP) bool {
	for _, ipNet := range r.trusted {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address resolved for this request, or the peer address when no
// resolver ran. The result does not alias the request buffer.
func ClientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return c.Context().RemoteIP().String()
}
