// Package privacy provides utilities for handling personally identifiable
// information (PII) when records must be retained past an erasure request.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
)

// Pseudonym derives a stable, irreversible replacement identifier for a
// subject. The same input always yields the same pseudonym so retained
// records for one subject remain correlatable with each other (audit trail
// integrity) without identifying the person.
func Pseudonym(subjectID string) string {
	sum := sha256.Sum256([]byte("consentry:" + subjectID))
	return "anon_" + hex.EncodeToString(sum[:6])
}

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// For IPv4 addresses, the last octet is zeroed (e.g., "192.168.1.47" ->
// "192.168.1.0"), masking to a /24 network. For IPv6 addresses, only the /48
// prefix is kept. The resulting value cannot identify a specific individual.
//
// Returns "invalid" for unparseable IP addresses, and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	// IPv6: keep only the first 6 bytes (/48 prefix)
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

// ScrubFields removes direct identifiers from a record in place and replaces
// the subject reference with its pseudonym. Fields listed in remove are
// deleted entirely; the "subject_id" field, when present, is pseudonymized
// rather than dropped so retained rows stay correlatable.
func ScrubFields(record map[string]any, remove []string) {
	for _, f := range remove {
		delete(record, f)
	}
	if v, ok := record["subject_id"].(string); ok {
		record["subject_id"] = Pseudonym(v)
	}
	if v, ok := record["ip_address"].(string); ok {
		record["ip_address"] = AnonymizeIP(v)
	}
}

// DefaultRemoveFields is the baseline set of direct identifiers stripped when
// a record is anonymized in place.
var DefaultRemoveFields = []string{
	"name",
	"email",
	"address",
	"phone",
	"guardian_name",
	"date_of_birth",
}
