package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockChecker{}, &mockChecker{}, &mockPinger{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, c := range []string{ComponentSearch, ComponentAI, ComponentWindows} {
		if r.Checks[c] != CheckOK {
			t.Errorf("expected %s %q, got %q", c, CheckOK, r.Checks[c])
		}
	}
}

func TestCheck_SearchBackendDown(t *testing.T) {
	svc := New(&mockChecker{err: errors.New("conn refused")}, &mockChecker{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks[ComponentSearch] != CheckError {
		t.Errorf("expected search %q, got %q", CheckError, r.Checks[ComponentSearch])
	}
}

func TestCheck_AIError(t *testing.T) {
	svc := New(&mockChecker{}, &mockChecker{err: errors.New("timeout")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks[ComponentAI] != CheckError {
		t.Errorf("expected ai %q, got %q", CheckError, r.Checks[ComponentAI])
	}
}

func TestCheck_RedisError(t *testing.T) {
	svc := New(&mockChecker{}, nil, &mockPinger{err: errors.New("down")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks[ComponentWindows] != CheckError {
		t.Errorf("expected redis %q, got %q", CheckError, r.Checks[ComponentWindows])
	}
}

func TestCheck_OptionalComponentsDisabled(t *testing.T) {
	svc := New(&mockChecker{}, nil, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks[ComponentAI] != CheckDisabled || r.Checks[ComponentWindows] != CheckDisabled {
		t.Errorf("expected disabled optional checks, got %v", r.Checks)
	}
}
