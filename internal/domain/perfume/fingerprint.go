package perfume

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// fingerprintSep joins normalized fields before hashing.
const fingerprintSep = "|"

// CanonicalYear coerces a release year of any shape to its fingerprint
// token: the decimal string of its integer part when it parses as a positive
// number, "0" otherwise (absent, empty, unparseable, zero or negative).
// Float-looking strings such as "1921.0" are accepted.
func CanonicalYear(v interface{}) string {
	var f float64
	switch t := v.(type) {
	case nil:
		return "0"
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		if t <= 0 {
			return "0"
		}
		return strconv.FormatInt(t, 10)
	case uint:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		if t == 0 {
			return "0"
		}
		return strconv.FormatUint(t, 10)
	case float32:
		f = float64(t)
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "0"
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Decimal comma, as in "1921,0".
			if parsed, err = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err != nil {
				return "0"
			}
		}
		f = parsed
	case *string:
		if t == nil {
			return "0"
		}
		return CanonicalYear(*t)
	default:
		return "0"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	f = math.Trunc(f)
	if f <= 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, fingerprintSep)))
	return hex.EncodeToString(sum[:])
}

// FingerprintStrict is the record identity used for deduplication and as the
// stable external key: SHA-256 over normalized brand, name and
// concentration plus the canonical year, rendered as 64 lowercase hex chars.
func FingerprintStrict(brand, name, concentration string, year interface{}) string {
	return digest(Normalize(brand), Normalize(name), Normalize(concentration), CanonicalYear(year))
}

// FingerprintLoose links variants of one base product: SHA-256 over the
// normalized brand and name only.
func FingerprintLoose(brand, name string) string {
	return digest(Normalize(brand), Normalize(name))
}

// StrictKey is FingerprintStrict over a record's fields.
func StrictKey(r RawRecord) string {
	return FingerprintStrict(r.Brand, r.Name, r.Concentration, r.ReleaseYear)
}

// LooseKey is FingerprintLoose over a record's fields.
func LooseKey(r RawRecord) string {
	return FingerprintLoose(r.Brand, r.Name)
}
