// Package negotiation identifies the picker widget calling the service.
// Clients announce themselves in the Picker-Client header; the REST
// middleware parses it and enforces the configured minimum version.
package negotiation

// PickerClientHeader is the request header carrying client identity.
const PickerClientHeader = "Picker-Client"

// ClientInfo is what the client announced about itself.
type ClientInfo struct {
	Name    string // optional
	Version string // semver, with or without the "v" prefix
}

// contextKey is the type for context values to avoid collisions
type contextKey string

// ClientContextKey is the context key for storing ClientInfo
const ClientContextKey contextKey = "picker.client"

// ClientHeaderInvalid is the error code when Picker-Client cannot be parsed
const ClientHeaderInvalid = "client_header_invalid"

// ClientVersionUnsupported is the error code when the client is older than the minimum
const ClientVersionUnsupported = "client_version_unsupported"
