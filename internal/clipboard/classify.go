package clipboard

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cursorclip/cursorclip/internal/types"
)

const passwordSpecials = "!@#$%^&*()-_=+[]{};:,.<>?/\\|`~"

// Classify derives the content kind from a payload and its MIME type. It is
// total and deterministic; first matching rule wins:
// image MIME > URL > file path > password > code > text.
func Classify(content []byte, mime string) types.Kind {
	if strings.HasPrefix(mime, "image/") {
		return types.KindImage
	}
	if !utf8.Valid(content) {
		return types.KindText
	}
	s := strings.TrimSpace(string(content))
	switch {
	case looksLikeURL(s):
		return types.KindURL
	case looksLikeFilePath(s):
		return types.KindFilePath
	case looksLikePassword(s):
		return types.KindPassword
	case looksLikeCode(s):
		return types.KindCode
	default:
		return types.KindText
	}
}

func looksLikeURL(s string) bool {
	i := strings.Index(s, "://")
	if i < 1 || strings.ContainsAny(s, " \t\n") {
		return false
	}
	for _, r := range s[:i] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	// Scheme must start with a letter.
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) && len(s) > i+3
}

func looksLikeFilePath(s string) bool {
	if !strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "~/") {
		return false
	}
	return s != "/" && !strings.ContainsAny(s, " \t\n")
}

// looksLikePassword flags short whitespace-free strings mixing letters,
// digits and punctuation. URLs and paths are already ruled out by ordering.
func looksLikePassword(s string) bool {
	if s == "" || len(s) >= 50 || strings.ContainsAny(s, " \t\n") {
		return false
	}
	var hasLetter, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			hasLetter = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}
	return hasLetter && hasSpecial
}

func looksLikeCode(s string) bool {
	if strings.Contains(s, "{") && strings.Contains(s, "}") {
		return true
	}
	if strings.Contains(s, ";\n") || strings.HasSuffix(s, ";") {
		return true
	}
	for _, kw := range []string{"func ", "fn ", "def ", "impl ", "struct ", "class ", "#include"} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	// Multiple indented lines read as a code block.
	indented := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ") {
			indented++
		}
	}
	return indented >= 2
}
