package classifier

import (
	"strconv"
	"strings"
	"unicode"
)

// specialForms orders the non-numeric version parts, matched by prefix in this order.
// "#" stands for any number.
var specialForms = []struct {
	name  string
	order int
}{
	{"dev", 0},
	{"alpha", 1},
	{"a", 1},
	{"beta", 2},
	{"b", 2},
	{"RC", 3},
	{"rc", 3},
	{"#", 4},
	{"pl", 5},
	{"p", 5},
}

const numberForm = "#"

func specialOrder(part string) int {
	for _, f := range specialForms {
		if strings.HasPrefix(part, f.name) {
			return f.order
		}
	}
	return -6
}

// canonicalVersion splits a version string into parts. Separators (. - _ +)
// delimit parts, and a switch between digits and letters starts a new part.
func canonicalVersion(v string) []string {
	var parts []string
	var cur strings.Builder
	prevDigit := false

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}

	for _, r := range v {
		switch {
		case r == '.' || r == '-' || r == '_' || r == '+':
			flush()
		case unicode.IsDigit(r):
			if cur.Len() > 0 && !prevDigit {
				flush()
			}
			cur.WriteRune(r)
			prevDigit = true
		default:
			if cur.Len() > 0 && prevDigit {
				flush()
			}
			cur.WriteRune(r)
			prevDigit = false
		}
	}
	flush()
	return parts
}

func isNumericPart(p string) bool {
	return p != "" && unicode.IsDigit(rune(p[0]))
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// CompareVersions compares two version strings the way PHP's version_compare does.
// It returns -1, 0 or 1.
func CompareVersions(v1, v2 string) int {
	switch {
	case v1 == "" && v2 == "":
		return 0
	case v1 == "":
		return -1
	case v2 == "":
		return 1
	}

	p1 := canonicalVersion(v1)
	p2 := canonicalVersion(v2)

	i := 0
	for ; i < len(p1) && i < len(p2); i++ {
		a, b := p1[i], p2[i]
		var c int
		switch {
		case isNumericPart(a) && isNumericPart(b):
			na, _ := strconv.ParseInt(a, 10, 64)
			nb, _ := strconv.ParseInt(b, 10, 64)
			c = sign(int(na - nb))
		case !isNumericPart(a) && !isNumericPart(b):
			c = sign(specialOrder(a) - specialOrder(b))
		case isNumericPart(a):
			c = sign(specialOrder(numberForm) - specialOrder(b))
		default:
			c = sign(specialOrder(a) - specialOrder(numberForm))
		}
		if c != 0 {
			return c
		}
	}

	switch {
	case i < len(p1):
		if isNumericPart(p1[i]) {
			return 1
		}
		return sign(specialOrder(p1[i]) - specialOrder(numberForm))
	case i < len(p2):
		if isNumericPart(p2[i]) {
			return -1
		}
		return sign(specialOrder(numberForm) - specialOrder(p2[i]))
	}
	return 0
}

// versionBelow reports whether v is set and strictly lower than threshold.
func versionBelow(v, threshold string) bool {
	return v != "" && CompareVersions(v, threshold) < 0
}

// versionAtLeast reports whether v is set and not lower than threshold.
func versionAtLeast(v, threshold string) bool {
	return v != "" && CompareVersions(v, threshold) >= 0
}
