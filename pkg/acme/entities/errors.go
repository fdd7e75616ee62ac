package entities

// Error represents an ACME problem document as per RFC 8555.
type Error struct {
	Type        string          `yaml:"type" json:"type"`
	Detail      string          `yaml:"detail" json:"detail"`
	Status      int             `yaml:"-" json:"-"`
	SubProblems []SubProblem    `yaml:"subproblems" json:"subproblems,omitempty"`
	Identifier  *ACMEIdentifier `yaml:"identifier" json:"identifier,omitempty"`
	Instance    string          `yaml:"instance" json:"instance,omitempty"`
}

// Implements the error interface
func (e *Error) Error() string {
	return e.Detail
}

// NewError creates a new ACME problem document.
func NewError(errType, detail string, status int, subproblems []SubProblem) *Error {
	return &Error{
		Type:        "urn:ietf:params:acme:error:" + errType,
		Detail:      detail,
		Status:      status,
		SubProblems: subproblems,
	}
}

// SubProblem represents a subproblem in a compound error per RFC 8555.
type SubProblem struct {
	Type       string          `yaml:"type" json:"type"`
	Detail     string          `yaml:"detail" json:"detail"`
	Identifier *ACMEIdentifier `yaml:"identifier" json:"identifier,omitempty"`
}
