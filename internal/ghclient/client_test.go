package ghclient_test

import (
	"testing"

	"github.com/relaytrain/pulse/internal/ghclient"
)

func TestParsePRURL(t *testing.T) {
	ref, err := ghclient.ParsePRURL("https://github.com/acme/svc/pull/42")
	if err != nil {
		t.Fatalf("ParsePRURL: %v", err)
	}
	if ref.Owner != "acme" || ref.Repo != "svc" || ref.Number != 42 {
		t.Fatalf("got %+v", ref)
	}
}

func TestParsePRURL_Invalid(t *testing.T) {
	if _, err := ghclient.ParsePRURL("not a url"); err == nil {
		t.Fatal("expected an error for a non-PR URL")
	}
}

func TestParseIssueURL(t *testing.T) {
	ref, err := ghclient.ParseIssueURL("https://github.com/acme/svc/issues/7")
	if err != nil {
		t.Fatalf("ParseIssueURL: %v", err)
	}
	if ref.Owner != "acme" || ref.Repo != "svc" || ref.Number != 7 {
		t.Fatalf("got %+v", ref)
	}
}

func TestParseIssueURL_Invalid(t *testing.T) {
	if _, err := ghclient.ParseIssueURL("https://github.com/acme/svc/pull/7"); err == nil {
		t.Fatal("expected an error for a PR URL, not an issue URL")
	}
}
