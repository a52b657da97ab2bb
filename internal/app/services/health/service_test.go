package health

import (
	"context"
	"errors"
	"testing"

	"github.com/shopforge/shopforge/internal/jobqueue"
)

func TestReportAllHealthy(t *testing.T) {
	svc := New(nil)
	svc.RegisterCheck("queue", QueueCheck(jobqueue.NewMemoryStrategy()))
	svc.RegisterCheck("noop", func(context.Context) error { return nil })

	report := svc.Report(context.Background())
	if report.Status != "ok" {
		t.Fatalf("status = %q", report.Status)
	}
	for name, comp := range report.Components {
		if comp.Status != "up" {
			t.Fatalf("component %s = %+v", name, comp)
		}
	}
	if report.Host.CPUs <= 0 || report.Host.GoVersion == "" {
		t.Fatalf("host snapshot = %+v", report.Host)
	}
}

func TestReportDegradedOnFailure(t *testing.T) {
	svc := New(nil)
	svc.RegisterCheck("ok", func(context.Context) error { return nil })
	svc.RegisterCheck("broken", func(context.Context) error { return errors.New("connection refused") })

	report := svc.Report(context.Background())
	if report.Status != "degraded" {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Components["broken"].Error != "connection refused" {
		t.Fatalf("broken component = %+v", report.Components["broken"])
	}
	if report.Components["ok"].Status != "up" {
		t.Fatalf("ok component = %+v", report.Components["ok"])
	}
}

func TestComponentsSorted(t *testing.T) {
	svc := New(nil)
	svc.RegisterCheck("zeta", func(context.Context) error { return nil })
	svc.RegisterCheck("alpha", func(context.Context) error { return nil })

	names := svc.Components()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("components = %v", names)
	}
}
