package httpapi

import (
	"net/http"

	"github.com/conticomp/xprotect-export/internal/exporter"
)

// statusFor maps an exporter.Tag to the HTTP status the thin collaborator
// surfaces (spec.md §7 — "Policy::* to 400, Auth::* to 401/403,
// Config::CameraNotFound to 404, everything else to 500").
func statusFor(tag exporter.Tag) int {
	switch tag {
	case exporter.TagPolicyRangeTooLarge, exporter.TagPolicyNoRecording:
		return http.StatusBadRequest
	case exporter.TagAuthInvalidCredentials, exporter.TagAuthExpired:
		return http.StatusUnauthorized
	case exporter.TagAuthSoapLoginFailed:
		return http.StatusForbidden
	case exporter.TagConfigCameraNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}
