package identity

import (
	"crypto/sha256"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Defaults applied to every synthesized identity.
var (
	DefaultRoles  = []string{"User"}
	DefaultGroups = []string{"default-group"}
)

// fallbackFamilyName is used when the local part carries no usable surname.
const fallbackFamilyName = "User"

// fallbackDomain stands in for the domain when the identifier has no '@'.
const fallbackDomain = "localhost"

// Claims is the deterministic identity derived from an email. It is immutable
// once synthesized; token issuance and user-info responses copy from it.
type Claims struct {
	Subject           string
	ObjectID          string
	TenantID          string
	Name              string
	GivenName         string
	FamilyName        string
	Email             string
	UPN               string
	PreferredUsername string
	Roles             []string
	Groups            []string
}

// Synthesizer maps identifiers to claim sets. The zero value is not usable;
// construct with New.
type Synthesizer struct {
	roles  []string
	groups []string
}

// New returns a Synthesizer with the default role and group sets.
func New() *Synthesizer {
	return &Synthesizer{roles: DefaultRoles, groups: DefaultGroups}
}

// NewWithDefaults returns a Synthesizer that stamps the given roles and
// groups onto every identity. Nil slices fall back to the package defaults.
func NewWithDefaults(roles, groups []string) *Synthesizer {
	s := New()
	if roles != nil {
		s.roles = roles
	}
	if groups != nil {
		s.groups = groups
	}
	return s
}

// Synthesize derives a claim set from an email address. It never fails: an
// identifier without an '@' is treated as a bare local part with a
// placeholder domain.
func (s *Synthesizer) Synthesize(email string) Claims {
	localPart := email
	domain := fallbackDomain
	if at := strings.Index(email, "@"); at >= 0 {
		localPart = email[:at]
		domain = email[at+1:]
	}

	givenName, familyName := splitName(localPart)

	name := strings.TrimSpace(givenName + " " + familyName)
	if name == "" || name == fallbackFamilyName {
		name = capitalize(localPart)
	}

	oid := DeterministicID(email)

	return Claims{
		Subject:           oid,
		ObjectID:          oid, // subject and object ID are the same identifier
		TenantID:          DeterministicID(domain),
		Name:              name,
		GivenName:         givenName,
		FamilyName:        familyName,
		Email:             email,
		UPN:               email,
		PreferredUsername: email,
		Roles:             s.roles,
		Groups:            s.groups,
	}
}

// DeterministicID hashes a seed and formats the first 16 digest bytes as
// UUID-shaped text. Identical seed, identical ID. The output intentionally
// skips RFC 4122 version/variant normalization.
func DeterministicID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	var id uuid.UUID
	copy(id[:], sum[:16])
	return id.String()
}

// splitName extracts a given/family name pair from the local part of an
// email. Supported shapes: name.surname, name_surname, name-surname, and a
// single run like "marcorossi83" which is split at the midpoint after
// stripping digits.
func splitName(localPart string) (given, family string) {
	parts := strings.Split(normalizeSeparators(localPart), ".")

	if len(parts) >= 2 {
		given = capitalize(parts[0])
		rest := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			rest = append(rest, capitalize(p))
		}
		return given, strings.Join(rest, " ")
	}

	stripped := stripDigits(parts[0])
	if utf8.RuneCountInString(stripped) > 3 {
		runes := []rune(stripped)
		mid := len(runes) / 2
		return capitalize(string(runes[:mid])), capitalize(string(runes[mid:]))
	}
	return capitalize(stripped), fallbackFamilyName
}

func normalizeSeparators(s string) string {
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "-", ".")
}

func stripDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, s)
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := cases.Lower(language.Und).String(s)
	r, size := utf8.DecodeRuneInString(lower)
	return cases.Upper(language.Und).String(string(r)) + lower[size:]
}
