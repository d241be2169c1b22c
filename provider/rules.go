package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/autobib/autobib/identifier"
)

// --- arxiv ---

var arxivNewPattern = regexp.MustCompile(`^[a-z-]+(\.[A-Z]{2})?/\d{7}$|^\d{4}\.\d{4,5}$`)

func validateArxiv(subID string) error {
	if arxivNewPattern.MatchString(stripArxivVersion(subID)) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(Arxiv), Reason: "not a recognized arXiv id"}
}

// normalizeArxiv strips a trailing version suffix (e.g. "v2"), per spec §4.2.
func normalizeArxiv(subID string) (string, error) {
	return stripArxivVersion(subID), nil
}

var arxivVersionSuffix = regexp.MustCompile(`v\d+$`)

func stripArxivVersion(s string) string {
	return arxivVersionSuffix.ReplaceAllString(s, "")
}

// --- doi ---

var doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

func validateDOI(subID string) error {
	if doiPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(DOI), Reason: "does not match 10.<registrant>/<suffix>"}
}

// normalizeDOI lower-cases the registrant prefix, per spec §4.2's example.
func normalizeDOI(subID string) (string, error) {
	idx := strings.IndexByte(subID, '/')
	if idx < 0 {
		return subID, nil
	}
	return strings.ToLower(subID[:idx]) + subID[idx:], nil
}

// --- mr (MathSciNet) ---

var mrPattern = regexp.MustCompile(`^\d+$`)

func validateMR(subID string) error {
	if mrPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(MR), Reason: "expected a numeric MathSciNet id"}
}

func normalizeMR(subID string) (string, error) { return subID, nil }

// --- ol (OpenLibrary) ---

var olPattern = regexp.MustCompile(`^OL\d+[MW]$`)

func validateOL(subID string) error {
	if olPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(OL), Reason: "expected OL<digits>M or OL<digits>W"}
}

func normalizeOL(subID string) (string, error) { return subID, nil }

// --- zbmath ---

var zbmathPattern = regexp.MustCompile(`^\d+$`)

func validateZBMath(subID string) error {
	if zbmathPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(ZBMath), Reason: "expected a numeric zbMATH id"}
}

func normalizeZBMath(subID string) (string, error) { return subID, nil }

// --- local ---

func validateLocal(subID string) error {
	// The sub-id of a local: identifier is a valid alias (spec §3 inv. 7).
	if err := identifier.ValidateAlias(subID); err != nil {
		return &identifier.BadSubIDError{Provider: string(Local), Reason: err.Error()}
	}
	return nil
}

func normalizeLocal(subID string) (string, error) { return subID, nil }

// --- isbn (reference -> ol) ---

func validateISBN(subID string) error {
	digits := strings.ReplaceAll(strings.ReplaceAll(subID, "-", ""), " ", "")
	switch len(digits) {
	case 10:
		if !isbn10ChecksumValid(digits) {
			return &identifier.BadSubIDError{Provider: string(ISBN), Reason: "invalid ISBN-10 checksum"}
		}
	case 13:
		if !isbn13ChecksumValid(digits) {
			return &identifier.BadSubIDError{Provider: string(ISBN), Reason: "invalid ISBN-13 checksum"}
		}
	default:
		return &identifier.BadSubIDError{Provider: string(ISBN), Reason: "expected 10 or 13 digits"}
	}
	return nil
}

// normalizeISBN strips separators, leaving bare digits (and a trailing "X"
// check digit for ISBN-10).
func normalizeISBN(subID string) (string, error) {
	return strings.ReplaceAll(strings.ReplaceAll(subID, "-", ""), " ", ""), nil
}

func isbn10ChecksumValid(digits string) bool {
	if len(digits) != 10 {
		return false
	}
	sum := 0
	for i := 0; i < 9; i++ {
		if !unicode.IsDigit(rune(digits[i])) {
			return false
		}
		d := int(digits[i] - '0')
		sum += (10 - i) * d
	}
	last := digits[9]
	var checkVal int
	if last == 'X' || last == 'x' {
		checkVal = 10
	} else if unicode.IsDigit(rune(last)) {
		checkVal = int(last - '0')
	} else {
		return false
	}
	sum += checkVal
	return sum%11 == 0
}

func isbn13ChecksumValid(digits string) bool {
	if len(digits) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		if !unicode.IsDigit(rune(digits[i])) {
			return false
		}
		d := int(digits[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	return sum%10 == 0
}

// --- jfm / zbl (reference -> zbmath) ---

var jfmPattern = regexp.MustCompile(`^\d{2}\.\d{4}\.\d{2}$`)

func validateJFM(subID string) error {
	if jfmPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(JFM), Reason: "expected JFM-style NN.NNNN.NN"}
}

func normalizeJFM(subID string) (string, error) { return subID, nil }

var zblPattern = regexp.MustCompile(`^\d{4}\.\d{5}$`)

func validateZBL(subID string) error {
	if zblPattern.MatchString(subID) {
		return nil
	}
	return &identifier.BadSubIDError{Provider: string(ZBL), Reason: "expected zbl-style NNNN.NNNNN"}
}

func normalizeZBL(subID string) (string, error) { return subID, nil }

// zbmathIDFromZBL derives the numeric zbMATH id that a zbl reference maps to
// in the absence of a live lookup. Real deployments inject a Resolver that
// performs this via the zbMATH API; this pure fallback keeps the mapping
// deterministic and testable offline by concatenating the zbl id's two
// numeric parts and zero-padding to 8 digits (zbl:1337.28015 yields
// zbmath:133728015). It is not a real zbMATH id and will not match the id
// a live lookup would return.
func zbmathIDFromZBL(zbl string) (string, error) {
	parts := strings.SplitN(zbl, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed zbl id %q", zbl)
	}
	n, err := strconv.Atoi(parts[0] + parts[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n), nil
}
