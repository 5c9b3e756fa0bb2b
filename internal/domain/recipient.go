package domain

// Recipient is one entry of the list fetched from the system of record for
// an agendamento. Immutable once fetched; never persisted before intake.
type Recipient struct {
	Phone        string `json:"telefone"`
	Name         string `json:"nome"`
	WalletID     string `json:"id_carteira"`
	Contract     string `json:"contrato"`
	TaxID        string `json:"cpf"`
	Message      string `json:"mensagem"`
	RegisteredAt string `json:"data_cadastro,omitempty"`
}

// Credentials is the opaque per-dispatch credential bag fetched from the
// system of record. Field names are provider-specific; the provider package
// remaps them to canonical names before use. Never persisted.
type Credentials map[string]string

// Get returns the value for key, or "" when absent.
func (c Credentials) Get(key string) string { return c[key] }

// Has reports whether every named key is present and non-empty.
func (c Credentials) Has(keys ...string) bool {
	for _, k := range keys {
		if c[k] == "" {
			return false
		}
	}
	return true
}
