package models

import (
	"testing"
	"time"
)

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Now()
	if !(RefreshToken{ExpiresAt: now.Add(time.Hour)}).Usable(now) {
		t.Fatalf("fresh token should be usable")
	}
	if (RefreshToken{ExpiresAt: now.Add(-time.Second)}).Usable(now) {
		t.Fatalf("expired token should not be usable")
	}
	if (RefreshToken{ExpiresAt: now.Add(time.Hour), Revoked: true}).Usable(now) {
		t.Fatalf("revoked token should not be usable")
	}
}

func TestRunHeaderRoundTrip(t *testing.T) {
	coins := 12.5
	var r Run
	r.Tier = 14.5
	r.CoinsPerHour = &coins
	h := r.Header()
	var other Run
	other.ApplyHeader(h)
	if other.Tier != 14.5 || other.CoinsPerHour == nil || *other.CoinsPerHour != 12.5 {
		t.Fatalf("header not copied: %+v", other.Header())
	}
}

func TestMasterRoles(t *testing.T) {
	roles := MasterRoles()
	if len(roles) != 2 || roles[0].Name != RoleAdministrator || roles[1].Name != RoleUser {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}
