package acme

// Config is the ACME section of the platform configuration file.
type Config struct {
	Server *ServerConfig `yaml:"server" json:"server" mapstructure:"server"`
}

// ServerConfig configures the certificate issuance service.
type ServerConfig struct {
	// Public directory URL, e.g. https://ca.example.com:8443/acme/directory
	DirectoryURL string `yaml:"directory" json:"directory" mapstructure:"directory"`

	// Challenge types offered on new authorizations
	Challenges []string `yaml:"challenges" json:"challenges" mapstructure:"challenges"`

	// Resolver ("host:port") used for dns-01 TXT lookups
	DNSResolver string `yaml:"dns-resolver" json:"dns_resolver" mapstructure:"dns-resolver"`

	// Ports the http-01 and tls-alpn-01 verifiers connect to. Zero
	// selects the standard ports 80 and 443.
	HTTPChallengePort    int `yaml:"http-challenge-port" json:"http_challenge_port" mapstructure:"http-challenge-port"`
	TLSALPNChallengePort int `yaml:"tls-alpn-challenge-port" json:"tls_alpn_challenge_port" mapstructure:"tls-alpn-challenge-port"`

	// Directory metadata
	TermsOfService string `yaml:"terms-of-service" json:"terms_of_service" mapstructure:"terms-of-service"`
	Website        string `yaml:"website" json:"website" mapstructure:"website"`

	// Lifetime knobs, in hours. Zero selects the defaults below.
	OrderTTL        int `yaml:"order-ttl" json:"order_ttl" mapstructure:"order-ttl"`
	AuthzPendingTTL int `yaml:"authz-pending-ttl" json:"authz_pending_ttl" mapstructure:"authz-pending-ttl"`
	AuthzValidTTL   int `yaml:"authz-valid-ttl" json:"authz_valid_ttl" mapstructure:"authz-valid-ttl"`
	NonceTTL        int `yaml:"nonce-ttl" json:"nonce_ttl" mapstructure:"nonce-ttl"`
}

const (
	DefaultOrderTTLHours        = 24
	DefaultAuthzPendingTTLHours = 7 * 24
	DefaultAuthzValidTTLHours   = 30 * 24
	DefaultNonceTTLHours        = 1
)

var DefaultServerConfig = ServerConfig{
	DirectoryURL: "https://localhost:8443/acme/directory",
	Challenges: []string{
		ChallengeTypeHTTP01.String(),
		ChallengeTypeDNS01.String(),
		ChallengeTypeTLSALPN01.String(),
	},
	DNSResolver:     "8.8.8.8:53",
	OrderTTL:        DefaultOrderTTLHours,
	AuthzPendingTTL: DefaultAuthzPendingTTLHours,
	AuthzValidTTL:   DefaultAuthzValidTTLHours,
	NonceTTL:        DefaultNonceTTLHours,
}

// ParseChallenges maps the configured challenge names to their types,
// failing on the first unknown name.
func ParseChallenges(names []string) ([]ChallengeType, error) {
	types := make([]ChallengeType, 0, len(names))
	for _, name := range names {
		challengeType, err := ParseChallengeType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, challengeType)
	}
	return types, nil
}
