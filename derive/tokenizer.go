package derive

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/reposit/core"
)

// Method name prefixes. Names are matched with either case of the first
// letter, so FindByName and findByName are equivalent.
const (
	PrefixFind   = "findBy"
	PrefixDelete = "deleteBy"
)

// TokenKind tags a token by the keyword that introduced it.
type TokenKind int

const (
	// TokenPredicate is a field-operator fragment with no leading keyword.
	TokenPredicate TokenKind = iota
	// TokenAnd is a predicate joined to the running condition with AND.
	TokenAnd
	// TokenOr is a predicate joined to the running condition with OR.
	TokenOr
	// TokenOrderBy is a sort key fragment.
	TokenOrderBy
)

func (k TokenKind) String() string {
	switch k {
	case TokenAnd:
		return "And"
	case TokenOr:
		return "Or"
	case TokenOrderBy:
		return "OrderBy"
	default:
		return "Predicate"
	}
}

// Token is one fragment of a method name. Text has the keyword stripped.
type Token struct {
	Kind TokenKind
	Text string
}

func (t Token) String() string {
	if t.Kind == TokenPredicate {
		return t.Text
	}
	return t.Kind.String() + ":" + t.Text
}

type keyword struct {
	text  string
	kind  TokenKind
	upper bool // only a keyword when followed by an upper-case letter
}

// Order matters: OrderBy must be tried before Or.
var keywords = []keyword{
	{text: "OrderBy", kind: TokenOrderBy},
	{text: "And", kind: TokenAnd},
	{text: "Or", kind: TokenOr},
	{text: "AND", kind: TokenAnd, upper: true},
	{text: "OR", kind: TokenOr, upper: true},
}

// Tokenize strips prefix from method and splits the remainder before every
// occurrence of And, Or and OrderBy. The all-caps AND and OR are accepted
// when followed by an upper-case letter. An empty remainder yields no
// tokens, meaning every record matches.
func Tokenize(method, prefix string) ([]Token, error) {
	rest, ok := trimPrefix(method, prefix)
	if !ok {
		return nil, fmt.Errorf("%w: %s: method name does not start with %s", core.ErrDynamicQuery, method, prefix)
	}
	if rest == "" {
		return nil, nil
	}

	var tokens []Token
	start := 0
	for i := 1; i < len(rest); i++ {
		kw, ok := keywordAt(rest, i)
		if !ok {
			continue
		}
		tokens = append(tokens, tagToken(rest[start:i], start == 0))
		start = i
		i += len(kw.text) - 1
	}
	tokens = append(tokens, tagToken(rest[start:], start == 0))
	return tokens, nil
}

// tagToken classifies a fragment by its leading keyword. The first fragment
// of a name only counts as keyword-led when the keyword is followed by an
// upper-case letter or ends the name, so a field such as orderId is not
// mistaken for an Or connector.
func tagToken(s string, first bool) Token {
	kw, ok := keywordAt(s, 0)
	if !ok {
		return Token{Kind: TokenPredicate, Text: s}
	}
	rest := s[len(kw.text):]
	if first && rest != "" && !startsUpper(rest) {
		return Token{Kind: TokenPredicate, Text: s}
	}
	return Token{Kind: kw.kind, Text: rest}
}

func keywordAt(s string, i int) (keyword, bool) {
	for _, kw := range keywords {
		if !strings.HasPrefix(s[i:], kw.text) {
			continue
		}
		if kw.upper && !startsUpper(s[i+len(kw.text):]) {
			continue
		}
		return kw, true
	}
	return keyword{}, false
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// trimPrefix removes prefix from name, ignoring the case of the first letter.
func trimPrefix(name, prefix string) (string, bool) {
	if len(name) < len(prefix) {
		return "", false
	}
	if LowerFirst(name[:len(prefix)]) != prefix {
		return "", false
	}
	return name[len(prefix):], true
}

// HasPrefix reports whether method starts with prefix, ignoring the case of
// the first letter.
func HasPrefix(method, prefix string) bool {
	_, ok := trimPrefix(method, prefix)
	return ok
}

// LowerFirst lower-cases the first rune of s.
func LowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
