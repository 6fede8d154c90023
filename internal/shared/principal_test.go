package shared

import (
	"context"
	"testing"
)

func TestRoleChecks(t *testing.T) {
	if !ValidRole(RoleAdmin) || !ValidRole(RoleEditor) || !ValidRole(RoleViewer) {
		t.Fatal("known roles must validate")
	}
	if ValidRole("owner") || ValidRole("") {
		t.Fatal("unknown roles must not validate")
	}

	if !(Principal{Role: RoleAdmin}).CanWrite() || !(Principal{Role: RoleEditor}).CanWrite() {
		t.Fatal("admin and editor must be writers")
	}
	if (Principal{Role: RoleViewer}).CanWrite() {
		t.Fatal("viewer must not be a writer")
	}
	if !(Principal{Role: RoleAdmin}).IsAdmin() || (Principal{Role: RoleEditor}).IsAdmin() {
		t.Fatal("only admin passes IsAdmin")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	want := Principal{ID: 7, Username: "alice", Role: RoleAdmin}
	ctx := ContextWithPrincipal(context.Background(), want)

	got, ok := PrincipalFromContext(ctx)
	if !ok || got != want {
		t.Fatalf("got (%+v, %t)", got, ok)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a principal")
	}
}
