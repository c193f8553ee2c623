package schema

// Capabilities declares which JSON Schema constructs a provider accepts in
// tool parameter schemas, and whether it offers native structured output.
// Each provider adapter reports its own set.
type Capabilities struct {
	// DiscriminatedUnions reports whether the provider accepts anyOf/oneOf
	// constructs with literal discriminator fields. When false, Transform
	// splits unions into one tool per branch.
	DiscriminatedUnions bool

	// StructuredOutput reports whether the provider can enforce a response
	// schema natively. When false, the engine falls back to prompt-based
	// extraction.
	StructuredOutput bool

	// Formats is the allow-list of "format" keyword values the provider
	// accepts. A nil slice means all formats pass through; an empty non-nil
	// slice strips every format.
	Formats []string

	// AdditionalProperties reports whether the provider tolerates the
	// additionalProperties keyword. When false it is stripped.
	AdditionalProperties bool

	// RequireExplicitRequired forces every object schema to carry an explicit
	// required list. Providers with strict function calling reject schemas
	// where required is omitted.
	RequireExplicitRequired bool
}

func (c Capabilities) allowsFormat(format string) bool {
	if c.Formats == nil {
		return true
	}
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}
	return false
}
