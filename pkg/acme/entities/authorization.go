package entities

type ACMEAuthorization struct {
	ID         uint64          `yaml:"id" json:"id"`
	AccountID  uint64          `yaml:"account-id" json:"account_id"`
	OrderID    uint64          `yaml:"order-id" json:"order_id"`
	Identifier ACMEIdentifier  `yaml:"identifier" json:"identifier"`
	Status     string          `yaml:"status" json:"status"`
	Expires    string          `yaml:"expires" json:"expires"`
	Challenges []ACMEChallenge `yaml:"challenges" json:"challenges"`
	Wildcard   bool            `yaml:"wildcard" json:"wildcard"`
	URL        string          `yaml:"url" json:"url"`
}

func (authz *ACMEAuthorization) SetEntityID(id uint64) {
	authz.ID = id
}

func (authz *ACMEAuthorization) EntityID() uint64 {
	return authz.ID
}
