package trigger

// Match reports whether a ref name matches a filter pattern. Patterns
// support '*' (any run of characters within one path segment), '?' (one
// character within a segment) and '**' (any run of characters, crossing
// segment boundaries). A pattern without wildcards is an exact match.
func Match(pattern, name string) bool {
	return matchHere(pattern, name)
}

func matchHere(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			if len(pattern) > 1 && pattern[1] == '*' {
				// '**' consumes any suffix, including slashes.
				rest := pattern[2:]
				for i := 0; i <= len(name); i++ {
					if matchHere(rest, name[i:]) {
						return true
					}
				}
				return false
			}
			// '*' stops at a path separator.
			rest := pattern[1:]
			for i := 0; ; i++ {
				if matchHere(rest, name[i:]) {
					return true
				}
				if i >= len(name) || name[i] == '/' {
					return false
				}
			}
		case '?':
			if len(name) == 0 || name[0] == '/' {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}

// matchAny reports whether the name matches at least one pattern.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
