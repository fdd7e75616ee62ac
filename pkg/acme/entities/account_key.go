package entities

// ACMEAccountKey indexes a key thumbprint to the account it
// authenticates. Key rollover re-points the index without changing
// the account's identity or URL.
type ACMEAccountKey struct {
	ID        uint64 `yaml:"id" json:"id"`
	AccountID uint64 `yaml:"account-id" json:"account_id"`
}

func (key *ACMEAccountKey) SetEntityID(id uint64) {
	key.ID = id
}

func (key *ACMEAccountKey) EntityID() uint64 {
	return key.ID
}
