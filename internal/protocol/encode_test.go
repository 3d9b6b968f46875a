package protocol

import (
	"strings"
	"testing"
)

func TestBuildConnectEnvelope(t *testing.T) {
	raw := BuildConnect(1, "cam-1", "tok&en", false)
	s := string(raw)
	if !strings.HasSuffix(s, "\r\n\r\n") {
		t.Fatalf("envelope missing trailing separator: %q", s)
	}
	if !strings.Contains(s, "<requestid>1</requestid>") {
		t.Fatalf("envelope missing requestid: %q", s)
	}
	if !strings.Contains(s, "<methodname>connect</methodname>") {
		t.Fatalf("envelope missing methodname: %q", s)
	}
	if !strings.Contains(s, "<alwaysstdjpeg>no</alwaysstdjpeg>") {
		t.Fatalf("envelope missing alwaysstdjpeg=no: %q", s)
	}
	if !strings.Contains(s, "tok&amp;en") {
		t.Fatalf("connection token not escaped: %q", s)
	}
}

func TestBuildNextAndPrevious(t *testing.T) {
	next := string(BuildNext(5))
	if !strings.Contains(next, "<methodname>next</methodname>") {
		t.Fatalf("BuildNext missing methodname: %q", next)
	}
	prev := string(BuildPrevious(6))
	if !strings.Contains(prev, "<methodname>previous</methodname>") {
		t.Fatalf("BuildPrevious missing methodname: %q", prev)
	}
}

func TestBuildGotoEncodesTimestamp(t *testing.T) {
	raw := string(BuildGoto(2, 1700000000000))
	if !strings.Contains(raw, "<time>1700000000000</time>") {
		t.Fatalf("BuildGoto missing time element: %q", raw)
	}
}

func TestXMLEscape(t *testing.T) {
	got := xmlEscape(`a&b<c>d"e`)
	want := "a&amp;b&lt;c&gt;d&quot;e"
	if got != want {
		t.Fatalf("xmlEscape() = %q, want %q", got, want)
	}
}
