package logx

import "strings"

// builtinSensitive are field names whose values never reach the output.
var builtinSensitive = []string{
	"access_token",
	"refresh_token",
	"client_secret",
	"code_verifier",
	"password",
	"secret",
	"token",
	"code",
}

// secretPrefixes mark server-side API keys; a value carrying one is masked
// whatever its field name.
var secretPrefixes = []string{"ssk_", "sak_"}

type redactor struct {
	fields map[string]struct{}
}

func newRedactor(extra []string) redactor {
	r := redactor{fields: make(map[string]struct{}, len(builtinSensitive)+len(extra))}
	for _, f := range builtinSensitive {
		r.fields[f] = struct{}{}
	}
	for _, f := range extra {
		r.fields[strings.ToLower(f)] = struct{}{}
	}
	return r
}

// apply returns fields with sensitive values masked. The input map is never
// modified; it is copied on the first masked value.
func (r redactor) apply(fields Fields) Fields {
	var out Fields
	for k, v := range fields {
		if !r.sensitive(k, v) {
			continue
		}
		if out == nil {
			out = make(Fields, len(fields))
			for k2, v2 := range fields {
				out[k2] = v2
			}
		}
		out[k] = mask(v)
	}
	if out == nil {
		return fields
	}
	return out
}

func (r redactor) sensitive(key string, value any) bool {
	if _, ok := r.fields[strings.ToLower(key)]; ok {
		return true
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, p := range secretPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// mask keeps the last four characters, like the API key listing does.
func mask(v any) string {
	if s, ok := v.(string); ok && len(s) > 8 {
		return "***" + s[len(s)-4:]
	}
	return "***"
}
