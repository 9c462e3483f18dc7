package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// NAT classifications derived from comparing the mappings different STUN
// servers report for the same local socket.
const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// PublicAddress reports the public IP this exporter probes from, plus a rough
// NAT classification from the spread of mappings. Servers that fail are
// skipped; only all of them failing is an error. The mapping belongs to the
// STUN socket, so probe traffic from other sockets may translate differently.
func PublicAddress(ctx context.Context, servers []string, timeout time.Duration) (string, string, error) {
	if len(servers) == 0 {
		return "", NATTypeUnknown, errors.New("no STUN servers configured")
	}

	var (
		mapped  []string
		lastErr error
	)
	for _, server := range servers {
		addr, err := mappedAddress(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		mapped = append(mapped, addr)
	}
	if len(mapped) == 0 {
		return "", NATTypeUnknown, fmt.Errorf("all STUN queries failed: %w", lastErr)
	}

	host, _, err := net.SplitHostPort(mapped[0])
	if err != nil {
		host = mapped[0]
	}
	return host, Classify(mapped), nil
}

// Classify infers the NAT flavor from mapped addresses gathered across
// servers: a NAT that allocates a fresh mapping per destination shows up as
// disagreement between them. Fewer than two mappings cannot be classified.
func Classify(mapped []string) string {
	if len(mapped) < 2 {
		return NATTypeUnknown
	}
	distinct := make(map[string]struct{}, len(mapped))
	for _, addr := range mapped {
		distinct[addr] = struct{}{}
	}
	if len(distinct) > 1 {
		return NATTypeSymmetric
	}
	return NATTypeConeOrRestricted
}

// mappedAddress runs one binding round-trip against server and returns the
// XOR-mapped address as "ip:port".
func mappedAddress(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uri, err := serverURI(server)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", server, err)
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		addr stun.XORMappedAddress
		err  error
	}
	// Buffered for both the event callback and a transaction error, so the
	// goroutine never leaks when ctx wins the select.
	replies := make(chan reply, 2)
	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(evt stun.Event) {
			if evt.Error != nil {
				replies <- reply{err: evt.Error}
				return
			}
			if err := addr.GetFrom(evt.Message); err != nil {
				replies <- reply{err: err}
				return
			}
			replies <- reply{addr: addr}
		})
		if err != nil {
			replies <- reply{err: err}
		}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			return "", fmt.Errorf("binding request to %s: %w", server, r.err)
		}
		return r.addr.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// serverURI accepts both bare "host:port" entries and full stun: URIs.
func serverURI(server string) (*stun.URI, error) {
	raw := strings.TrimSpace(server)
	if raw == "" {
		return nil, errors.New("empty STUN server")
	}
	if !strings.HasPrefix(raw, "stun:") {
		raw = "stun:" + raw
	}
	uri, err := stun.ParseURI(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", server, err)
	}
	return uri, nil
}
