package provider

import "github.com/ignite/campaign-dispatch/internal/domain"

// credentialAliases maps, per provider, the field names the system of
// record uses to the canonical names the adapters read. The remapping used
// to be scattered inline conditionals; one explicit table per provider
// keeps each independently testable.
var credentialAliases = map[string]map[string]string{
	CDA: {
		"api_url": "url",
		"apikey":  "api_key",
		"chave":   "api_key",
	},
	GOSAC: {
		"api_url":       "url",
		"authorization": "token",
	},
	GOSACOficial: {
		"api_url":       "url",
		"authorization": "token",
	},
	RCS: {
		"api_key": "chave_api",
		"api_url": "base_url",
	},
	OmniRCS: {
		"authorization": "token",
	},
	OmniWhatsApp: {
		"authorization":  "token",
		"codigo_broker":  "broker",
		"codigo_cliente": "customer",
	},
	Salesforce: {
		"api_url":   "rest_url",
		"token_uri": "token_url",
	},
	Noah: {
		"api_url":       "url",
		"authorization": "token",
	},
}

// MapCredentials copies the raw bag and applies the provider's aliases.
// An alias never overwrites a canonical field that is already present.
func MapCredentials(providerName string, raw domain.Credentials) domain.Credentials {
	mapped := make(domain.Credentials, len(raw))
	for k, v := range raw {
		mapped[k] = v
	}
	for alias, canonical := range credentialAliases[providerName] {
		if v, ok := raw[alias]; ok && mapped[canonical] == "" {
			mapped[canonical] = v
		}
	}
	return mapped
}
