package domain

import (
	"testing"
	"time"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.4.2", "1.4", 1},
		{"", "0.0.0", 0},
		{"1.x.0", "1.0.0", 0},
	}
	for _, c := range cases {
		if got := CompareVersions(c.a, c.b); got != c.want {
			t.Fatalf("CompareVersions(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestWindowContains(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	fixed := &Task{Position: 0}
	if !fixed.WindowContains(now) {
		t.Fatalf("fixed-slot tasks have no window")
	}

	adhoc := &Task{Position: AdHocPosition, StartDate: &start, ExpirationDate: &end}
	if !adhoc.WindowContains(now) {
		t.Fatalf("now is inside the window")
	}
	if adhoc.WindowContains(end) {
		t.Fatalf("expiration is exclusive")
	}
	if !adhoc.WindowContains(start) {
		t.Fatalf("start is inclusive")
	}
	if adhoc.WindowContains(start.Add(-time.Second)) {
		t.Fatalf("before start is outside")
	}

	undated := &Task{Position: AdHocPosition, StartDate: &start}
	if undated.WindowContains(now) {
		t.Fatalf("an ad-hoc task missing a window bound is never visible")
	}
}

func TestRequiresUpgrade(t *testing.T) {
	task := &Task{MinVersion: map[Platform]string{PlatformIOS: "1.2.0"}}

	if !task.RequiresUpgrade(PlatformIOS, "1.1.9") {
		t.Fatalf("older client must require an upgrade")
	}
	if task.RequiresUpgrade(PlatformIOS, "1.2.0") {
		t.Fatalf("exact minimum is enough")
	}
	if task.RequiresUpgrade(PlatformAndroid, "0.0.1") {
		t.Fatalf("no minimum for the platform means no gate")
	}
}

func TestExcludesCountry(t *testing.T) {
	task := &Task{ExcludedCountries: []string{"DE", "fr"}}
	if !task.ExcludesCountry("de") || !task.ExcludesCountry("FR") {
		t.Fatalf("country match must be case-insensitive")
	}
	if task.ExcludesCountry("US") {
		t.Fatalf("US is not excluded")
	}
}

func TestOfferAvailableFor(t *testing.T) {
	offer := &Offer{Active: true, MinVersion: map[Platform]string{PlatformAndroid: "2.0.0"}}
	if !offer.AvailableFor(PlatformAndroid, "2.0.0") {
		t.Fatalf("minimum version qualifies")
	}
	if offer.AvailableFor(PlatformAndroid, "1.9.0") {
		t.Fatalf("older client must not see the offer")
	}
	if !offer.AvailableFor(PlatformIOS, "0.1.0") {
		t.Fatalf("ungated platform always qualifies")
	}

	offer.Active = false
	if offer.AvailableFor(PlatformIOS, "9.0.0") {
		t.Fatalf("inactive offers are never available")
	}
}

func TestOrderExpired(t *testing.T) {
	now := time.Now()
	order := &Order{CreatedAt: now.Add(-10 * time.Minute)}
	if order.Expired(now, 15*time.Minute) {
		t.Fatalf("order inside its ttl is live")
	}
	if !order.Expired(now, 10*time.Minute) {
		t.Fatalf("ttl boundary counts as expired")
	}
}
