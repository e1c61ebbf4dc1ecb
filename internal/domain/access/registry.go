package access

// Registry is the ordered set of configured tokens.
// Lookups scan linearly and the first match wins when identifiers collide.
type Registry struct {
	tokens []Token
}

// NewRegistry creates a registry over the provided tokens.
func NewRegistry(tokens ...Token) *Registry {
	return &Registry{
		tokens: append([]Token(nil), tokens...),
	}
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// FindByUID returns the first token with the given hardware identifier.
func (r *Registry) FindByUID(uid string) (Token, bool) {
	return r.find(func(t Token) bool { return t.uid == uid })
}

// FindByName returns the first token with the given display name.
func (r *Registry) FindByName(name string) (Token, bool) {
	return r.find(func(t Token) bool { return t.name == name })
}

func (r *Registry) find(match func(Token) bool) (Token, bool) {
	for _, token := range r.tokens {
		if match(token) {
			return token, true
		}
	}

	return Token{}, false
}
