// Package chars implements the character classification primitives shared
// by the XML tokenizer and the XPath lexer: XML NameStartChar/NameChar,
// decimal/hex digits, and XML whitespace.
package chars

// IsNameStartChar reports whether c may begin an XML Name (NameStartChar,
// XML 1.0 5th edition production [4]).
func IsNameStartChar(c rune) bool {
	switch {
	case c == ':' || c == '_':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= 0xC0 && c <= 0xD6:
		return true
	case c >= 0xD8 && c <= 0xF6:
		return true
	case c >= 0xF8 && c <= 0x2FF:
		return true
	case c >= 0x370 && c <= 0x37D:
		return true
	case c >= 0x37F && c <= 0x1FFF:
		return true
	case c >= 0x200C && c <= 0x200D:
		return true
	case c >= 0x2070 && c <= 0x218F:
		return true
	case c >= 0x2C00 && c <= 0x2FEF:
		return true
	case c >= 0x3001 && c <= 0xD7FF:
		return true
	case c >= 0xF900 && c <= 0xFDCF:
		return true
	case c >= 0xFDF0 && c <= 0xFFFD:
		return true
	case c >= 0x10000 && c <= 0xEFFFF:
		return true
	default:
		return false
	}
}

// IsNameChar reports whether c may occur in an XML Name after the first
// character (NameChar, production [4a]).
func IsNameChar(c rune) bool {
	switch {
	case IsNameStartChar(c):
		return true
	case c == '-' || c == '.':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == 0xB7:
		return true
	case c >= 0x0300 && c <= 0x036F:
		return true
	case c >= 0x203F && c <= 0x2040:
		return true
	default:
		return false
	}
}

// IsNCNameStartChar reports whether c may begin an XML NCName: a Name
// without the colon production.
func IsNCNameStartChar(c rune) bool {
	return c != ':' && IsNameStartChar(c)
}

// IsNCNameChar reports whether c may occur in an XML NCName after the
// first character.
func IsNCNameChar(c rune) bool {
	return c != ':' && IsNameChar(c)
}

// IsWhitespace reports whether c is XML S (whitespace, production [3]):
// space, tab, CR, or LF.
func IsWhitespace(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

// IsDigit reports whether c is a decimal digit, as used by numeric
// character references (&#NNN;) and XPath NUMBER_LITERAL tokens.
func IsDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// IsHexDigit reports whether c is a hexadecimal digit, as used by
// hexadecimal character references (&#xHHH;).
func IsHexDigit(c rune) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'f':
		return true
	case c >= 'A' && c <= 'F':
		return true
	default:
		return false
	}
}

// IsChar reports whether c is a legal XML 1.0 Char (production [2]).
// When xml11 is true, the wider XML 1.1 Char production is used instead.
func IsChar(c rune, xml11 bool) bool {
	if xml11 {
		switch {
		case c == 0:
			return false
		case c >= 1 && c <= 0xD7FF:
			return true
		case c >= 0xE000 && c <= 0xFFFD:
			return true
		case c >= 0x10000 && c <= 0x10FFFF:
			return true
		default:
			return false
		}
	}
	switch {
	case c == 0x9 || c == 0xA || c == 0xD:
		return true
	case c >= 0x20 && c <= 0xD7FF:
		return true
	case c >= 0xE000 && c <= 0xFFFD:
		return true
	case c >= 0x10000 && c <= 0x10FFFF:
		return true
	default:
		return false
	}
}

// IsRestrictedChar reports whether c is an XML 1.1 "restricted character"
// (production [2a]) — discouraged control characters that are legal but
// must be expressed only via character references, never literally.
func IsRestrictedChar(c rune) bool {
	switch {
	case c >= 0x1 && c <= 0x8:
		return true
	case c >= 0xB && c <= 0xC:
		return true
	case c >= 0xE && c <= 0x1F:
		return true
	case c >= 0x7F && c <= 0x84:
		return true
	case c >= 0x86 && c <= 0x9F:
		return true
	default:
		return false
	}
}
