package protocol

import (
	"fmt"
)

// envelope wraps a method call body in the wire template of spec.md §4.3.
func envelope(id uint32, name, body string) []byte {
	return []byte(fmt.Sprintf(
		"<?xml version=\"1.0\" encoding=\"utf-8\"?><methodcall><requestid>%d</requestid><methodname>%s</methodname>%s</methodcall>\r\n\r\n",
		id, name, body,
	))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// BuildConnect issues the connect call. alwaysStdJpeg requests raw codec
// mode when false, per spec.md §4.3.
func BuildConnect(id uint32, cameraID, connectionToken string, alwaysStdJpeg bool) []byte {
	connectParam := fmt.Sprintf("id=%s&amp;connectiontoken=%s", xmlEscape(cameraID), xmlEscape(connectionToken))
	body := fmt.Sprintf(
		"<username>dummy</username><password>dummy</password><alwaysstdjpeg>%s</alwaysstdjpeg><connectparam>%s</connectparam>",
		yesNo(alwaysStdJpeg), connectParam,
	)
	return envelope(id, "connect", body)
}

// BuildConnectUpdate refreshes the connection's ImageServer token without
// reconnecting (spec.md §4.3, §4.5 point 5).
func BuildConnectUpdate(id uint32, connectionToken string) []byte {
	body := fmt.Sprintf("<connectparam>connectiontoken=%s</connectparam>", xmlEscape(connectionToken))
	return envelope(id, "connectupdate", body)
}

// BuildGoto seeks the stream to the given Unix-millisecond timestamp.
func BuildGoto(id uint32, unixMs int64) []byte {
	body := fmt.Sprintf("<time>%d</time>", unixMs)
	return envelope(id, "goto", body)
}

// BuildNext requests the next frame.
func BuildNext(id uint32) []byte { return envelope(id, "next", "") }

// BuildPrevious requests the previous frame.
func BuildPrevious(id uint32) []byte { return envelope(id, "previous", "") }

// BuildLive switches the connection to live mode. Unused on the export
// path (spec.md Non-goals exclude live viewing) but kept since the wire
// protocol exposes it and disconnect/live share the empty-body shape.
func BuildLive(id uint32) []byte { return envelope(id, "live", "") }

// BuildDisconnect tears down the server-side session.
func BuildDisconnect(id uint32) []byte { return envelope(id, "disconnect", "") }

func xmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, []byte("&amp;")...)
		case '<':
			out = append(out, []byte("&lt;")...)
		case '>':
			out = append(out, []byte("&gt;")...)
		case '"':
			out = append(out, []byte("&quot;")...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
