package security

import (
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if digest == "hunter2" {
		t.Fatalf("digest must not equal the plaintext")
	}
	if !VerifyPassword("hunter2", digest) {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword("wrong", digest) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestIssueAndParseUserToken(t *testing.T) {
	token, err := IssueUserToken("secret", "alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	subject, errParse := ParseUserToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if subject != "alice" {
		t.Fatalf("expected subject=alice, got %q", subject)
	}

	if _, errWrong := ParseUserToken("other-secret", token); errWrong == nil {
		t.Fatalf("expected parse to fail with wrong secret")
	}
}

func TestParseUserToken_Expired(t *testing.T) {
	token, err := IssueUserToken("secret", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseUserToken("secret", token); errParse == nil {
		t.Fatalf("expected expired token to fail")
	}
}
