package registry

import (
	"github.com/volatiletech/null/v8"

	"github.com/pylon-apis/pylon/internal/domain/entities"
)

// catalog returns the native and partner capability definitions. Endpoints
// are templated from the configured backend base URL; prices are parsed to
// micro-units at load time.
func catalog(baseURL string) []*entities.Capability {
	str := func(desc string, required bool) entities.InputField {
		return entities.InputField{Type: "string", Required: required, Description: desc}
	}
	num := func(desc string, def any) entities.InputField {
		return entities.InputField{Type: "number", Description: desc, Default: def}
	}
	boolean := func(desc string, def any) entities.InputField {
		return entities.InputField{Type: "boolean", Description: desc, Default: def}
	}

	return []*entities.Capability{
		{
			ID:          "screenshot",
			Name:        "Screenshot",
			Description: "Render a URL in a headless browser and return a screenshot",
			Price:       "$0.01",
			Keywords:    []string{"screenshot", "capture", "snapshot", "render", "webpage"},
			Endpoint:    baseURL + "/screenshot",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"url":      str("url of the page to capture", true),
				"width":    num("viewport width in pixels", 1280),
				"height":   num("viewport height in pixels", 800),
				"fullPage": boolean("capture the full scroll height", false),
				"format":   {Type: "string", Description: "image format: png, jpeg or webp", Default: "png"},
			},
			Output: entities.OutputImage,
			Source: entities.SourceNative,
		},
		{
			ID:          "web-scrape",
			Name:        "Web Scrape",
			Description: "Fetch a URL and extract its readable content as markdown",
			Price:       "$0.005",
			Keywords:    []string{"scrape", "extract", "crawl", "fetch", "content", "markdown"},
			Endpoint:    baseURL + "/scrape",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"url":      str("url of the page to scrape", true),
				"selector": str("optional css selector to scope extraction", false),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "pdf-generate",
			Name:        "PDF Generate",
			Description: "Convert markdown or HTML into a PDF document",
			Price:       "$0.01",
			Keywords:    []string{"pdf", "document", "convert", "generate", "print"},
			Endpoint:    baseURL + "/pdf",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"markdown": str("markdown content to render", false),
				"html":     str("html content to render", false),
				"url":      str("url of the page to convert", false),
			},
			Output: entities.OutputPDF,
			Source: entities.SourceNative,
		},
		{
			ID:          "ocr",
			Name:        "OCR",
			Description: "Extract text from an image",
			Price:       "$0.01",
			Keywords:    []string{"ocr", "text", "image", "recognize", "read"},
			Endpoint:    baseURL + "/ocr",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"url":      str("url of the image to read", false),
				"data":     str("base64 image data", false),
				"language": {Type: "string", Description: "expected language code", Default: "en"},
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "web-search",
			Name:        "Web Search",
			Description: "Search the web and return ranked results",
			Price:       "$0.005",
			Keywords:    []string{"search", "find", "lookup", "query", "results"},
			Endpoint:    baseURL + "/search",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"q":     str("search query", true),
				"limit": num("maximum number of results", 10),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "qr-code",
			Name:        "QR Code",
			Description: "Generate a QR code image for arbitrary data",
			Price:       "$0.002",
			Keywords:    []string{"qr", "qrcode", "barcode", "encode"},
			Endpoint:    baseURL + "/qr",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"data": str("payload to encode", true),
				"size": num("image size in pixels", 256),
			},
			Output: entities.OutputImage,
			Source: entities.SourceNative,
		},
		{
			ID:          "image-resize",
			Name:        "Image Resize",
			Description: "Resize an image to the requested dimensions",
			Price:       "$0.005",
			Keywords:    []string{"resize", "image", "scale", "thumbnail", "crop"},
			Endpoint:    baseURL + "/resize",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"url":    str("url of the image to resize", true),
				"width":  num("target width in pixels", nil),
				"height": num("target height in pixels", nil),
				"format": {Type: "string", Description: "output format: png, jpeg or webp", Default: "png"},
			},
			Output: entities.OutputImage,
			Source: entities.SourceNative,
		},
		{
			ID:          "dns-lookup",
			Name:        "DNS Lookup",
			Description: "Resolve DNS records for a domain",
			Price:       "$0.001",
			Keywords:    []string{"dns", "resolve", "domain", "records", "nameserver"},
			Endpoint:    baseURL + "/dns",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"domain": str("domain name to resolve", true),
				"type":   {Type: "string", Description: "record type", Default: "A"},
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "email-validate",
			Name:        "Email Validate",
			Description: "Validate an email address syntax and mail domain",
			Price:       "$0.001",
			Keywords:    []string{"email", "validate", "verify", "mailbox", "address"},
			Endpoint:    baseURL + "/email/validate",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"email": str("email address to validate", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "url-shorten",
			Name:        "URL Shorten",
			Description: "Create a short link for a URL",
			Price:       "$0.001",
			Keywords:    []string{"shorten", "shortlink", "link", "redirect"},
			Endpoint:    baseURL + "/shorten",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"url": str("url to shorten", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "markdown-convert",
			Name:        "Markdown Convert",
			Description: "Convert HTML to markdown or markdown to HTML",
			Price:       "$0.002",
			Keywords:    []string{"markdown", "html", "convert", "format"},
			Endpoint:    baseURL + "/markdown",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"content": str("content to convert", true),
				"to":      {Type: "string", Description: "target format: html or markdown", Default: "markdown"},
			},
			Output: entities.OutputText,
			Source: entities.SourceNative,
		},
		{
			ID:          "json-format",
			Name:        "JSON Format",
			Description: "Parse, validate and pretty-print JSON",
			Price:       "$0.001",
			Keywords:    []string{"json", "parse", "format", "validate", "pretty"},
			Endpoint:    baseURL + "/json",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"data":   str("json text to process", true),
				"indent": num("indentation width", 2),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "text-summarize",
			Name:        "Text Summarize",
			Description: "Summarize a block of text or the content of a URL",
			Price:       "$0.01",
			Keywords:    []string{"summarize", "summary", "shorten", "tldr", "text"},
			Endpoint:    baseURL + "/summarize",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"text":      str("text to summarize", false),
				"url":       str("url whose content should be summarized", false),
				"sentences": num("target summary length in sentences", 3),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "uuid-generate",
			Name:        "UUID Generate",
			Description: "Generate random UUIDs",
			Price:       "$0.001",
			Keywords:    []string{"uuid", "guid", "identifier", "generate", "random"},
			Endpoint:    baseURL + "/uuid",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"count": num("number of uuids to generate", 1),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},
		{
			ID:          "geo-ip",
			Name:        "Geo IP",
			Description: "Geolocate an IP address",
			Price:       "$0.001",
			Keywords:    []string{"geoip", "geolocate", "location", "country"},
			Endpoint:    baseURL + "/geoip",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"ip": str("ip address to locate", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourceNative,
		},

		// Partner capabilities. Revenue is split with the listed provider.
		{
			ID:          "whois-lookup",
			Name:        "WHOIS Lookup",
			Description: "Look up WHOIS registration data for a domain",
			Price:       "$0.005",
			Keywords:    []string{"whois", "domain", "registration", "registrar", "lookup"},
			Endpoint:    baseURL + "/partner/whois",
			Method:      "GET",
			Inputs: map[string]entities.InputField{
				"domain": str("domain name to look up", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourcePartner,
			Provider: &entities.Provider{
				Name:          "DomainData Labs",
				PayoutAddress: "0x4bBa2905D0B35E0d1f1A7c6aE6E0b7cB8e6D4F21",
				ContactURL:    null.StringFrom("https://domaindata.example.com"),
				Split:         entities.RevenueSplit{Provider: 0.7, Gateway: 0.3},
			},
		},
		{
			ID:          "sentiment-analyze",
			Name:        "Sentiment Analyze",
			Description: "Score the sentiment of a piece of text",
			Price:       "$0.003",
			Keywords:    []string{"sentiment", "analyze", "emotion", "tone", "text"},
			Endpoint:    baseURL + "/partner/sentiment",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"text": str("text to analyze", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourcePartner,
			Provider: &entities.Provider{
				Name:          "Lexiq AI",
				PayoutAddress: "0x7aD91c3f8E2B44F0A9D3bD1E85C7a4F2e9B06c55",
				Split:         entities.RevenueSplit{Provider: 0.6, Gateway: 0.4},
			},
		},
		{
			ID:          "translate",
			Name:        "Translate",
			Description: "Translate text between languages",
			Price:       "$0.004",
			Keywords:    []string{"translate", "translation", "language", "localize"},
			Endpoint:    baseURL + "/partner/translate",
			Method:      "POST",
			Inputs: map[string]entities.InputField{
				"text": str("text to translate", true),
				"from": {Type: "string", Description: "source language code", Default: "auto"},
				"to":   str("target language code", true),
			},
			Output: entities.OutputJSON,
			Source: entities.SourcePartner,
			Provider: &entities.Provider{
				Name:          "Polyglot Networks",
				PayoutAddress: "0x1E60B8A4F37D1Bf94c4cB30A8d6E13FbBd7E9A02",
				ContactURL:    null.StringFrom("https://polyglot.example.net/partners"),
				Split:         entities.RevenueSplit{Provider: 0.65, Gateway: 0.35},
			},
		},
	}
}
