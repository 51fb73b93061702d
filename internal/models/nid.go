package models

// FieldValue is one extracted card field as returned to callers
type FieldValue struct {
	Value      string  `json:"value"`
	Strategy   string  `json:"strategy"`   // which rule located the field
	Confidence float64 `json:"confidence"` // line confidence x strategy weight (0-1)
	Line       int     `json:"line"`       // index of the normalized line
}

// FieldComparison is the outcome of comparing one field to a caller reference
type FieldComparison struct {
	Status     string   `json:"status"`               // match, mismatch, no_extracted_value, no_comparison_data_provided
	Similarity *float64 `json:"similarity,omitempty"` // rounded to 2 places
	Match      *bool    `json:"match,omitempty"`
	Extracted  string   `json:"extracted,omitempty"`
	Reference  string   `json:"reference,omitempty"`
}

// ComparisonBlock groups the per-field comparisons of a request
type ComparisonBlock struct {
	Status      string           `json:"status"` // compared or no_comparison_data_provided
	Name        *FieldComparison `json:"name,omitempty"`
	DateOfBirth *FieldComparison `json:"date_of_birth,omitempty"`
	IDNumber    *FieldComparison `json:"id_number,omitempty"`
}

// Diagnostic explains why a field is missing from the response
type Diagnostic struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NIDResponse represents the output of processing one card image
type NIDResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Engine    string `json:"engine,omitempty"`
	Error     string `json:"error,omitempty"`

	Name        *FieldValue `json:"name"`
	DateOfBirth *FieldValue `json:"date_of_birth"`
	IDNumber    *FieldValue `json:"id_number"`

	RawText     string           `json:"raw_text,omitempty"`
	Comparison  *ComparisonBlock `json:"comparison,omitempty"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`

	// Processing metadata
	OCRDuration   float64 `json:"ocr_duration"`   // OCR time in seconds
	TotalDuration float64 `json:"total_duration"` // Total processing time
}

// TokenRequest is the body of a token exchange
type TokenRequest struct {
	ClientID string `json:"client_id"`
}

// TokenResponse carries a freshly issued access token
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// ErrorResponse is the JSON body of every rejected request
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
