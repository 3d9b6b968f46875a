package httpapi

import (
	"net/http"
	"testing"

	"github.com/conticomp/xprotect-export/internal/exporter"
)

func TestStatusForMapsTaxonomy(t *testing.T) {
	cases := []struct {
		tag  exporter.Tag
		want int
	}{
		{exporter.TagPolicyRangeTooLarge, http.StatusBadRequest},
		{exporter.TagPolicyNoRecording, http.StatusBadRequest},
		{exporter.TagAuthInvalidCredentials, http.StatusUnauthorized},
		{exporter.TagAuthExpired, http.StatusUnauthorized},
		{exporter.TagAuthSoapLoginFailed, http.StatusForbidden},
		{exporter.TagConfigCameraNotFound, http.StatusNotFound},
		{exporter.TagProtoConnectionBroken, http.StatusInternalServerError},
		{exporter.TagUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.tag); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.tag, got, tc.want)
		}
	}
}
