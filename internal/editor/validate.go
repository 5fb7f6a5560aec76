package editor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ValidationResult lists every problem found. IsValid is true iff Errors is
// empty.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

type styleRule struct {
	pattern *regexp.Regexp
	message string
}

var (
	scriptRules = []styleRule{
		{regexp.MustCompile(`(^|[^=!<>])==($|[^=])`), "Use === instead of == for comparison"},
		{regexp.MustCompile(`!=($|[^=])`), "Use !== instead of != for comparison"},
		{regexp.MustCompile(`\bvar\s+[A-Za-z_$]`), "Use let or const instead of var"},
		{regexp.MustCompile(`\beval\s*\(`), "Avoid eval(); it executes arbitrary code"},
	}
	typeScriptRules = []styleRule{
		{regexp.MustCompile(`:\s*any\b`), "Avoid the any type; prefer a specific type or unknown"},
	}
)

// loaderFor maps a language tag to an esbuild loader. ok is false for
// languages without a syntax check.
func loaderFor(language string) (loader api.Loader, typed bool, ok bool) {
	switch strings.ToLower(language) {
	case "javascript", "js", "mjs":
		return api.LoaderJS, false, true
	case "jsx":
		return api.LoaderJSX, false, true
	case "typescript", "ts":
		return api.LoaderTS, true, true
	case "tsx":
		return api.LoaderTSX, true, true
	case "css":
		return api.LoaderCSS, false, true
	case "json":
		return api.LoaderJSON, false, true
	default:
		return api.LoaderNone, false, false
	}
}

// SupportsLanguage reports whether Validate can syntax-check language
func SupportsLanguage(language string) bool {
	_, _, ok := loaderFor(language)
	return ok
}

// Validate checks code written in language. The syntax check parses without
// executing; only the first syntax error is reported.
func Validate(code, language string) ValidationResult {
	errs := []string{}

	loader, typed, ok := loaderFor(language)
	if ok && loader != api.LoaderCSS && loader != api.LoaderJSON {
		errs = append(errs, styleProblems(code, scriptRules)...)
		if typed {
			errs = append(errs, styleProblems(code, typeScriptRules)...)
		}
	}
	if ok {
		if msg := syntaxError(code, loader); msg != "" {
			errs = append(errs, msg)
		}
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func styleProblems(code string, rules []styleRule) []string {
	stripped := stripStringsAndComments(code)
	var out []string
	for _, r := range rules {
		if r.pattern.MatchString(stripped) {
			out = append(out, r.message)
		}
	}
	return out
}

func syntaxError(code string, loader api.Loader) string {
	result := api.Transform(code, api.TransformOptions{
		Loader:   loader,
		LogLevel: api.LogLevelSilent,
	})
	if len(result.Errors) == 0 {
		return ""
	}

	first := result.Errors[0]
	if first.Location != nil {
		return fmt.Sprintf("Syntax error: %s (line %d, column %d)", first.Text, first.Location.Line, first.Location.Column+1)
	}
	return "Syntax error: " + first.Text
}

// stripStringsAndComments blanks out string literals and comments so style
// rules only see code
func stripStringsAndComments(code string) string {
	var b strings.Builder
	b.Grow(len(code))

	const (
		stateCode = iota
		stateLineComment
		stateBlockComment
		stateString
	)
	state := stateCode
	var quote byte

	for i := 0; i < len(code); i++ {
		c := code[i]
		switch state {
		case stateCode:
			switch {
			case c == '/' && i+1 < len(code) && code[i+1] == '/':
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(code) && code[i+1] == '*':
				state = stateBlockComment
				i++
			case c == '"' || c == '\'' || c == '`':
				state = stateString
				quote = c
				b.WriteByte(c)
			default:
				b.WriteByte(c)
			}
		case stateLineComment:
			if c == '\n' {
				state = stateCode
				b.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(code) && code[i+1] == '/' {
				state = stateCode
				i++
			}
		case stateString:
			switch c {
			case '\\':
				i++
			case quote:
				state = stateCode
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
