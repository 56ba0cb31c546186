package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

const excerptLen = 200

var codeFence = regexp.MustCompile("(?s)^```[A-Za-z]*[ \t]*\n(.*?)\n?```$")

// GenerateSchema reflects the JSON schema of the response type behind
// value. Definitions are inlined and unknown properties are forbidden, as
// the strict structured output modes of the providers require.
func GenerateSchema(value any) any {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return r.ReflectFromType(t)
}

// DecodeResponse parses the output of the model call op into out. Output
// that cannot be decoded is reported as KindMalformed so that Query asks
// again.
func DecodeResponse(op, content string, out any) error {
	if err := UnmarshalFlexible(content, out); err != nil {
		return NewError(op, KindMalformed, err)
	}
	return nil
}

// UnmarshalFlexible decodes model output into out. Besides plain JSON it
// accepts output inside a markdown code fence, JSON encoded as a string, a
// doubled opening brace and anything jsonrepair can fix.
func UnmarshalFlexible(input string, out any) error {
	candidate := unfence(input)
	if json.Unmarshal([]byte(candidate), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(candidate), &inner) == nil {
		candidate = unfence(inner)
		if json.Unmarshal([]byte(candidate), out) == nil {
			return nil
		}
	}

	candidate = dropDoubledBrace(candidate)
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("repair model output %q: %w", excerpt(candidate), err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode repaired model output %q: %w", excerpt(repaired), err)
	}
	return nil
}

func unfence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// dropDoubledBrace turns "{ {" at the start of s into a single brace.
func dropDoubledBrace(s string) string {
	rest, ok := strings.CutPrefix(s, "{")
	if !ok {
		return s
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "{") {
		return rest
	}
	return s
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}
