package xid

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestSaleNumberFormat(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 5, 7, 0, time.UTC)
	got := SaleNumber("SUC001", at)

	pattern := regexp.MustCompile(`^SUC001-20261016090507-[0-9A-F]{4}$`)
	if !pattern.MatchString(got) {
		t.Fatalf("unexpected sale number %q", got)
	}
}

func TestNewIsPrefixed(t *testing.T) {
	a, b := New("evt"), New("evt")
	if !strings.HasPrefix(a, "evt-") {
		t.Fatalf("expected evt prefix, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids")
	}
}
