package security

import (
	"context"
	"testing"

	"github.com/nyumbahub/nyumba-backend/pkg/enums"
	pkgerrors "github.com/nyumbahub/nyumba-backend/pkg/errors"
)

func gateFixture(t *testing.T, repo *fakeRepo, ranges []string) (*IPGate, Service) {
	t.Helper()
	events, err := NewService(ServiceParams{Repo: repo, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewIPGate(repo, events, testLogger(), ranges), events
}

func TestBlockedIPRejected(t *testing.T) {
	repo := newFakeRepo()
	repo.blocked["203.0.113.9"] = true
	gate, events := gateFixture(t, repo, nil)

	err := gate.Check(context.Background(), IPGateInput{IPAddress: "203.0.113.9"})
	events.Close()

	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeSecurityPolicy {
		t.Fatalf("error = %v, want SECURITY_POLICY_VIOLATION", err)
	}
	logs := repo.snapshot()
	if len(logs) != 1 || logs[0].Type != enums.SecurityEventBlockedIPAccess {
		t.Fatalf("logs = %+v, want one BLOCKED_IP_ACCESS event", logs)
	}
}

func TestDenylistErrorFailsClosed(t *testing.T) {
	repo := newFakeRepo()
	repo.err = context.DeadlineExceeded
	gate, events := gateFixture(t, repo, nil)
	defer events.Close()

	err := gate.Check(context.Background(), IPGateInput{IPAddress: "203.0.113.9"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeSecurityPolicy {
		t.Fatalf("error = %v, want rejection when denylist is unavailable", err)
	}
}

func TestPrivateAddressIsAdvisory(t *testing.T) {
	repo := newFakeRepo()
	gate, events := gateFixture(t, repo, nil)

	err := gate.Check(context.Background(), IPGateInput{IPAddress: "192.168.1.10"})
	events.Close()

	if err != nil {
		t.Fatalf("private address must pass: %v", err)
	}
	logs := repo.snapshot()
	if len(logs) != 1 || logs[0].Type != enums.SecurityEventSuspiciousIP {
		t.Fatalf("logs = %+v, want one SUSPICIOUS_IP event", logs)
	}
}

func TestConfiguredSuspiciousRangeIsAdvisory(t *testing.T) {
	repo := newFakeRepo()
	gate, events := gateFixture(t, repo, []string{"198.51.100.0/24"})

	err := gate.Check(context.Background(), IPGateInput{IPAddress: "198.51.100.7"})
	events.Close()

	if err != nil {
		t.Fatalf("suspicious range must pass: %v", err)
	}
	logs := repo.snapshot()
	if len(logs) != 1 || logs[0].Type != enums.SecurityEventSuspiciousIP {
		t.Fatalf("logs = %+v, want one SUSPICIOUS_IP event", logs)
	}
}

func TestPublicAddressPassesQuietly(t *testing.T) {
	repo := newFakeRepo()
	gate, events := gateFixture(t, repo, []string{"198.51.100.0/24"})

	err := gate.Check(context.Background(), IPGateInput{IPAddress: "203.0.113.50"})
	events.Close()

	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if logs := repo.snapshot(); len(logs) != 0 {
		t.Fatalf("logs = %+v, want none", logs)
	}
}

func TestUnparseableRangeSkipped(t *testing.T) {
	repo := newFakeRepo()
	gate, events := gateFixture(t, repo, []string{"not-a-cidr"})
	defer events.Close()

	if err := gate.Check(context.Background(), IPGateInput{IPAddress: "203.0.113.50"}); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
