package security

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
	"github.com/nyumbahub/nyumba-backend/pkg/logger"
)

// IPBlocklist is the denylist view the gate consults.
type IPBlocklist interface {
	IsIPBlocked(ctx context.Context, ip string) (bool, error)
}

// IPGateInput describes the request under evaluation.
type IPGateInput struct {
	IPAddress string
	UserID    *uuid.UUID
	UserAgent string
	Endpoint  string
	Method    string
}

// IPGate enforces the IP denylist and flags traffic from private or configured
// suspicious ranges. The denylist fails closed: if the lookup is unavailable
// the request is rejected rather than let a blocked caller through.
type IPGate struct {
	blocklist  IPBlocklist
	events     Service
	logg       *logger.Logger
	suspicious []*net.IPNet
}

// NewIPGate wires the IP policy gate. Unparseable configured ranges are
// skipped with a warning.
func NewIPGate(blocklist IPBlocklist, events Service, logg *logger.Logger, suspiciousRanges []string) *IPGate {
	gate := &IPGate{blocklist: blocklist, events: events, logg: logg}
	for _, raw := range suspiciousRanges {
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			logg.Warn(logg.WithField(context.Background(), "range", raw), "ignoring unparseable suspicious ip range")
			continue
		}
		gate.suspicious = append(gate.suspicious, network)
	}
	return gate
}

// Check rejects denylisted addresses and records advisory events for traffic
// that should not normally reach a public API.
func (g *IPGate) Check(ctx context.Context, input IPGateInput) error {
	blocked, err := g.blocklist.IsIPBlocked(ctx, input.IPAddress)
	if err != nil {
		g.logg.Error(g.logg.WithField(ctx, "ip", input.IPAddress), "ip denylist unavailable", err)
		return pkgerrors.Wrap(pkgerrors.CodeSecurityPolicy, err, "ip policy check unavailable")
	}
	if blocked {
		g.events.LogAsync(g.event(enums.SecurityEventBlockedIPAccess, input, nil))
		return pkgerrors.New(pkgerrors.CodeSecurityPolicy, "request rejected")
	}

	if reason := g.suspicionReason(input.IPAddress); reason != "" {
		g.events.LogAsync(g.event(enums.SecurityEventSuspiciousIP, input, map[string]any{"reason": reason}))
	}
	return nil
}

func (g *IPGate) suspicionReason(raw string) string {
	ip := net.ParseIP(raw)
	if ip == nil {
		return "unparseable address"
	}
	if ip.IsPrivate() || ip.IsLoopback() {
		return "private address range"
	}
	for _, network := range g.suspicious {
		if network.Contains(ip) {
			return "configured suspicious range"
		}
	}
	return ""
}

func (g *IPGate) event(eventType enums.SecurityEventType, input IPGateInput, details map[string]any) Event {
	return Event{
		Type:      eventType,
		UserID:    input.UserID,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
		Endpoint:  input.Endpoint,
		Method:    input.Method,
		Details:   details,
	}
}
