package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func hs256Token(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	pay, _ := json.Marshal(claims)
	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(hdr) + "." + enc.EncodeToString(pay)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	return signingInput + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t_acme:planner")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "t_acme" || p.Role != RolePlanner {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, err := v.Verify("notoken"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func TestVerifyHMAC(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("s3cret"), TenantClaim: "tenant", RoleClaim: "role"}
	tok := hs256Token(t, "s3cret", map[string]any{"tenant": "t1", "role": "Admin"})
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Tenant != "t1" || p.Role != RoleAdmin {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestVerifyHMACBadSignature(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("right"), TenantClaim: "tenant", RoleClaim: "role"}
	tok := hs256Token(t, "wrong", map[string]any{"tenant": "t1", "role": "planner"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected bad signature error")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("s"), TenantClaim: "tenant", RoleClaim: "role"}
	tok := hs256Token(t, "s", map[string]any{"tenant": "t1", "role": "planner", "exp": time.Now().Add(-time.Hour).Unix()})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected token expired error")
	}
}

func TestRoleRanking(t *testing.T) {
	admin := Principal{Tenant: "t1", Role: RoleAdmin}
	planner := Principal{Tenant: "t1", Role: RolePlanner}
	if !admin.Allows(RolePlanner) {
		t.Fatal("admin should cover planner")
	}
	if planner.Allows(RoleAdmin) {
		t.Fatal("planner must not cover admin")
	}
	if !planner.Allows(RoleDriver) {
		t.Fatal("planner should cover driver")
	}
}
