package codec

import "sort"

// Registry maps message formats to codecs. A Registry never changes after NewRegistry
// returns and is safe for concurrent use.
type Registry struct {
	codecs map[string]Codec
}

var defaultRegistry = NewRegistry()

// Default returns the registry which only knows the JSON codec
func Default() *Registry { return defaultRegistry }

// NewRegistry returns a registry with the JSON codec and the given codecs. A codec
// replaces any codec listed before it with the same format, including the JSON codec.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: map[string]Codec{FormatJSON: JSON{}}}
	for _, c := range codecs {
		if c == nil {
			continue
		}
		r.codecs[c.Format()] = c
	}
	return r
}

// Lookup returns the codec for format or a *MissingCodecError
func (r *Registry) Lookup(format string) (Codec, error) {
	if r == nil {
		r = defaultRegistry
	}
	c, ok := r.codecs[format]
	if !ok {
		return nil, &MissingCodecError{Format: format}
	}
	return c, nil
}

// Formats returns the registered format names in sorted order
func (r *Registry) Formats() []string {
	if r == nil {
		r = defaultRegistry
	}
	formats := make([]string, 0, len(r.codecs))
	for f := range r.codecs {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
