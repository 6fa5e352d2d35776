package mocks

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Vendor string
	Method string
	Path   string
	// Credential is the secret the request authenticated with
	Credential string
}

// VendorBehavior overrides how a mock vendor answers.
type VendorBehavior struct {
	// Status forces every response to this code when non-zero
	Status int
	// Message is returned in the vendor's error body
	Message string
}

// errorBody mirrors the most common vendor error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}
