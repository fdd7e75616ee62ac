package entities

// ACMEIdentifier is an identifier the client requests a certificate
// for, as per RFC 8555 Section 9.7.7.
type ACMEIdentifier struct {
	Type  string `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

func (identifier ACMEIdentifier) Equals(other ACMEIdentifier) bool {
	return identifier.Type == other.Type && identifier.Value == other.Value
}
