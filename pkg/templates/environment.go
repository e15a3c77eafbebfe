package templates

import (
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// ParseEnv reads lines of `KEY=VALUE`.
//
// Only the first "=" delimits, and lines without "=" are ignored.
// Values are taken as they are. Nothing requires quoting.
func ParseEnv(text string) map[string]string {
	env := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}

// SafeSubstitute replaces `${KEY}` in text with mapping[KEY].
//
// Placeholders for missing keys are left as they are.
func SafeSubstitute(text string, mapping map[string]string) string {
	tpl, err := fasttemplate.NewTemplate(text, "${", "}")
	if err != nil {
		// unbalanced placeholders; nothing to substitute safely.
		return text
	}
	return tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		if v, ok := mapping[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("${" + tag + "}"))
	})
}

// ApplyEnvironment parses environment as ParseEnv does, and substitutes it into text.
func ApplyEnvironment(environment string, text string) string {
	if environment == "" {
		return text
	}
	return SafeSubstitute(text, ParseEnv(environment))
}
