package policy

import "strings"

const scopeSeparator = " "

// scopeSet is the normalized set of scopes granted by a token.
type scopeSet map[string]struct{}

func (s scopeSet) containsAll(required []string) bool {
	for _, scope := range required {
		if _, ok := s[scope]; !ok {
			return false
		}
	}
	return true
}

// grantedScopes resolves the payload's scope field, which may be an array
// of values or a single separator-delimited string. A missing field grants
// nothing.
func grantedScopes(payload interface{}) scopeSet {
	set := make(scopeSet)
	raw, ok := payloadField(payload, scopeField)
	if !ok {
		return set
	}
	switch v := raw.(type) {
	case []interface{}:
		for _, el := range v {
			set[textValue(el)] = struct{}{}
		}
	default:
		for _, scope := range strings.Split(textValue(raw), scopeSeparator) {
			set[scope] = struct{}{}
		}
	}
	return set
}

// hasRequiredScopes reports whether the payload grants every required
// scope. An empty requirement passes trivially. Comparison is exact, there
// is no hierarchy between scopes.
func hasRequiredScopes(payload interface{}, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	return grantedScopes(payload).containsAll(requiredScopes)
}
