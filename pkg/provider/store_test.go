package provider

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mockidp/mockidp/pkg/identity"
)

func testClaims() identity.Claims {
	return identity.Claims{
		Subject: "sub-1",
		Email:   "mario.rossi@company.com",
		Name:    "Mario Rossi",
	}
}

func TestSessionStoreRedeemSingleUse(t *testing.T) {
	store := NewSessionStore(time.Minute)
	code, err := store.Create("client", "http://localhost/cb", "openid", testClaims(), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := store.Redeem(code)
	if err != nil {
		t.Fatalf("first Redeem: %v", err)
	}
	if sess.ClientID != "client" || sess.Scope != "openid" {
		t.Errorf("unexpected session: %+v", sess)
	}

	if _, err := store.Redeem(code); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("second Redeem = %v, want ErrCodeNotFound", err)
	}
}

func TestSessionStoreRedeemUnknown(t *testing.T) {
	store := NewSessionStore(time.Minute)
	if _, err := store.Redeem("no-such-code"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Redeem = %v, want ErrCodeNotFound", err)
	}
}

func TestSessionStoreRedeemExpired(t *testing.T) {
	store := NewSessionStore(10 * time.Millisecond)
	code, err := store.Create("client", "http://localhost/cb", "openid", testClaims(), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := store.Redeem(code); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("Redeem = %v, want ErrCodeExpired", err)
	}
	// Expired codes are consumed, not left behind.
	if _, err := store.Redeem(code); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Redeem after expiry = %v, want ErrCodeNotFound", err)
	}
}

func TestSessionStoreConcurrentRedeem(t *testing.T) {
	store := NewSessionStore(time.Minute)
	code, err := store.Create("client", "http://localhost/cb", "openid", testClaims(), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Redeem(code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrCodeNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("got %d successful redemptions, want exactly 1", successes)
	}
}

func TestSessionStoreCodesAreUnique(t *testing.T) {
	store := NewSessionStore(time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := store.Create("client", "http://localhost/cb", "openid", testClaims(), nil, nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestRefreshStoreLifecycle(t *testing.T) {
	store := NewRefreshStore()
	tok, err := store.Create(testClaims(), "openid profile", "client")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, ok := store.Lookup(tok)
	if !ok {
		t.Fatal("Lookup failed for freshly created token")
	}
	if rec.Scope != "openid profile" || rec.ClientID != "client" {
		t.Errorf("unexpected record: %+v", rec)
	}

	// Lookup does not consume.
	if _, ok := store.Lookup(tok); !ok {
		t.Error("second Lookup failed")
	}

	if !store.Delete(tok) {
		t.Error("Delete reported missing token")
	}
	if _, ok := store.Lookup(tok); ok {
		t.Error("Lookup succeeded after Delete")
	}
	if store.Delete(tok) {
		t.Error("second Delete reported success")
	}
}

func TestRevocationRegistry(t *testing.T) {
	reg := NewRevocationRegistry()
	if reg.IsRevoked("tok") {
		t.Error("fresh registry reported token revoked")
	}
	reg.Revoke("tok")
	reg.Revoke("tok")
	if !reg.IsRevoked("tok") {
		t.Error("revoked token not reported")
	}
	if reg.IsRevoked("other") {
		t.Error("unrelated token reported revoked")
	}
}
