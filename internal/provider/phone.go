package provider

import "strings"

const countryCode = "55"

// NormalizePhone strips formatting characters and prefixes the country
// code unless it is already present. All adapters share this rule.
//
//	"(11) 98765-4321" -> "5511987654321"
//	"5511987654321"   -> "5511987654321"
func NormalizePhone(phone string) string {
	cleaned := strings.NewReplacer(" ", "", "(", "", ")", "", "-", "").Replace(phone)
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return cleaned
	}
	if !strings.HasPrefix(cleaned, countryCode) {
		cleaned = countryCode + cleaned
	}
	return cleaned
}

// LocalPhone normalizes and then strips the country code. The Omni vendor
// expects local-format numbers.
func LocalPhone(phone string) string {
	return strings.TrimPrefix(NormalizePhone(phone), countryCode)
}
