package api

// Header constants used in HTTP requests and responses.
const (
	// ItemNameHeader names an item uploaded as a raw body.
	ItemNameHeader = "X-Item-Name"

	// ItemPropertiesHeader carries the properties of a raw upload as a JSON object.
	ItemPropertiesHeader = "X-Item-Properties"

	// ContentTypeMergePatch selects a JSON merge patch (RFC 7386) on PATCH.
	ContentTypeMergePatch = "application/merge-patch+json"

	// ContentTypeJSONPatch selects a JSON patch (RFC 6902) on PATCH.
	ContentTypeJSONPatch = "application/json-patch+json"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the full error message.
	Error string `json:"error"`

	// Subsystem is the part of the service the failure originated in:
	// registry, provider, validation, store or manager.
	Subsystem string `json:"subsystem,omitempty"`

	// Violations lists every constraint an item's properties failed.
	Violations []string `json:"violations,omitempty"`
}

