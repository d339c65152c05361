package usecases

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pylon-apis/pylon/internal/domain/entities"
)

// The extraction heuristic is deliberately narrow: first occurrence of each
// pattern below, assigned to a schema input by name or description. New
// patterns are added only when a capability schema needs them.
var (
	extractURL    = regexp.MustCompile(`https?://[^\s"'<>]+`)
	extractEmail  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	extractDomain = regexp.MustCompile(`\b([a-z0-9][a-z0-9\-]*(?:\.[a-z0-9][a-z0-9\-]*)*\.(?:com|org|net|io|ai|dev|co|app|xyz|me|info|tech|gg|tv))\b`)
	extractDims   = regexp.MustCompile(`(\d{2,5})\s*[x×]\s*(\d{2,5})`)
	extractPixels = regexp.MustCompile(`(\d{2,5})\s*px\b`)
	extractFormat = regexp.MustCompile(`\b(png|jpeg|jpg|webp|pdf)\b`)
)

// ExtractParams pulls parameters out of free text for the given schema.
// Applied only when the caller supplied no explicit params.
func ExtractParams(task string, inputs map[string]entities.InputField) map[string]any {
	params := make(map[string]any)
	lower := strings.ToLower(task)

	if m := extractURL.FindString(task); m != "" {
		if name := inputByNameOrDesc(inputs, "url"); name != "" {
			params[name] = strings.TrimRight(m, ".,;)")
		} else if _, ok := inputs["data"]; ok {
			params["data"] = strings.TrimRight(m, ".,;)")
		}
	}

	if m := extractEmail.FindString(task); m != "" {
		if name := inputByNameOrDesc(inputs, "email"); name != "" {
			params[name] = m
		}
	}

	if m := extractDomain.FindString(lower); m != "" {
		if _, ok := inputs["domain"]; ok {
			params["domain"] = m
		}
		// A bare domain also satisfies a url input when no explicit URL
		// appeared in the task.
		if _, ok := inputs["url"]; ok {
			if _, has := params["url"]; !has {
				params["url"] = "https://" + m
			}
		}
	}

	if m := extractDims.FindStringSubmatch(task); m != nil {
		if _, ok := inputs["width"]; ok {
			if w, err := strconv.Atoi(m[1]); err == nil {
				params["width"] = w
			}
		}
		if _, ok := inputs["height"]; ok {
			if h, err := strconv.Atoi(m[2]); err == nil {
				params["height"] = h
			}
		}
	}

	if m := extractPixels.FindStringSubmatch(lower); m != nil {
		if _, ok := inputs["size"]; ok {
			if s, err := strconv.Atoi(m[1]); err == nil {
				params["size"] = s
			}
		}
	}

	if strings.Contains(lower, "full page") {
		if _, ok := inputs["fullPage"]; ok {
			params["fullPage"] = true
		}
	}

	if m := extractFormat.FindString(lower); m != "" {
		if _, ok := inputs["format"]; ok {
			params["format"] = m
		}
	}

	return params
}

// ApplyDefaults fills absent fields that declare a schema default.
func ApplyDefaults(params map[string]any, inputs map[string]entities.InputField) {
	for name, field := range inputs {
		if field.Default == nil {
			continue
		}
		if _, present := params[name]; !present {
			params[name] = field.Default
		}
	}
}

// MissingRequired lists required schema fields absent from params.
func MissingRequired(params map[string]any, inputs map[string]entities.InputField) []string {
	var missing []string
	for name, field := range inputs {
		if !field.Required {
			continue
		}
		if _, present := params[name]; !present {
			missing = append(missing, name)
		}
	}
	return missing
}

// inputByNameOrDesc finds a schema input literally named key or whose
// description mentions it.
func inputByNameOrDesc(inputs map[string]entities.InputField, key string) string {
	if _, ok := inputs[key]; ok {
		return key
	}
	for name, field := range inputs {
		if strings.Contains(strings.ToLower(field.Description), key) {
			return name
		}
	}
	return ""
}

// Sequencing markers and action verbs for the multi-step heuristic.
var (
	chainPhrases = []string{" then ", " and then ", " after that ", " next ", " pipe ", " chain "}
	convertForm  = regexp.MustCompile(`\bconvert\b.+\bto\b`)
	actionVerbs  = []string{
		"scrape", "screenshot", "extract", "convert", "generate", "search",
		"resize", "parse", "shorten", "validate", "lookup", "upload", "format",
	}
)

// LooksMultiStep reports whether the task reads like a chain of operations.
// Non-fatal: single-step dispatch still runs, the response just carries a
// hint pointing at the chain endpoint.
func LooksMultiStep(task string) bool {
	lower := " " + strings.ToLower(task) + " "
	for _, phrase := range chainPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if convertForm.MatchString(lower) {
		return true
	}
	verbs := 0
	for _, verb := range actionVerbs {
		if strings.Contains(lower, verb) {
			verbs++
			if verbs >= 2 {
				return true
			}
		}
	}
	return false
}
