package settings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"voicedesk/models"
)

// Vendor describes a provider the validator knows how to probe
type Vendor struct {
	Name           string          `json:"name"`
	DisplayName    string          `json:"displayName"`
	Category       models.Category `json:"category"`
	Description    string          `json:"description"`
	DefaultBaseURL string          `json:"-"`

	// newProbe builds the cheapest authenticated request the vendor offers
	newProbe func(ctx context.Context, baseURL, secret string) (*http.Request, error)
}

// Known vendor names
const (
	VendorOpenAI     = "openai"
	VendorAnthropic  = "anthropic"
	VendorGroq       = "groq"
	VendorDeepgram   = "deepgram"
	VendorAssemblyAI = "assemblyai"
	VendorElevenLabs = "elevenlabs"
	VendorCartesia   = "cartesia"
	VendorTwilio     = "twilio"
	VendorTelnyx     = "telnyx"
)

var vendorCatalog = map[string]Vendor{
	VendorOpenAI: {
		Name:           VendorOpenAI,
		DisplayName:    "OpenAI",
		Category:       models.CategoryLLM,
		Description:    "GPT models for conversation logic",
		DefaultBaseURL: "https://api.openai.com",
		newProbe:       headerProbe("/v1/models", "Authorization", "Bearer "),
	},
	VendorAnthropic: {
		Name:           VendorAnthropic,
		DisplayName:    "Anthropic",
		Category:       models.CategoryLLM,
		Description:    "Claude models for conversation logic",
		DefaultBaseURL: "https://api.anthropic.com",
		newProbe: withHeaders(headerProbe("/v1/models", "x-api-key", ""),
			"anthropic-version", "2023-06-01"),
	},
	VendorGroq: {
		Name:           VendorGroq,
		DisplayName:    "Groq",
		Category:       models.CategoryLLM,
		Description:    "Low-latency hosted open models",
		DefaultBaseURL: "https://api.groq.com",
		newProbe:       headerProbe("/openai/v1/models", "Authorization", "Bearer "),
	},
	VendorDeepgram: {
		Name:           VendorDeepgram,
		DisplayName:    "Deepgram",
		Category:       models.CategorySTT,
		Description:    "Streaming speech recognition",
		DefaultBaseURL: "https://api.deepgram.com",
		newProbe:       headerProbe("/v1/projects", "Authorization", "Token "),
	},
	VendorAssemblyAI: {
		Name:           VendorAssemblyAI,
		DisplayName:    "AssemblyAI",
		Category:       models.CategorySTT,
		Description:    "Speech recognition and transcription",
		DefaultBaseURL: "https://api.assemblyai.com",
		newProbe:       headerProbe("/v2/transcript?limit=1", "Authorization", ""),
	},
	VendorElevenLabs: {
		Name:           VendorElevenLabs,
		DisplayName:    "ElevenLabs",
		Category:       models.CategoryTTS,
		Description:    "Natural voice synthesis",
		DefaultBaseURL: "https://api.elevenlabs.io",
		newProbe:       headerProbe("/v1/user", "xi-api-key", ""),
	},
	VendorCartesia: {
		Name:           VendorCartesia,
		DisplayName:    "Cartesia",
		Category:       models.CategoryTTS,
		Description:    "Low-latency voice synthesis",
		DefaultBaseURL: "https://api.cartesia.ai",
		newProbe: withHeaders(headerProbe("/voices", "X-API-Key", ""),
			"Cartesia-Version", "2024-06-10"),
	},
	VendorTwilio: {
		Name:           VendorTwilio,
		DisplayName:    "Twilio",
		Category:       models.CategoryTelephony,
		Description:    "Phone numbers and call routing (secret is ACCOUNT_SID:AUTH_TOKEN)",
		DefaultBaseURL: "https://api.twilio.com",
		newProbe:       twilioProbe,
	},
	VendorTelnyx: {
		Name:           VendorTelnyx,
		DisplayName:    "Telnyx",
		Category:       models.CategoryTelephony,
		Description:    "Phone numbers and call routing",
		DefaultBaseURL: "https://api.telnyx.com",
		newProbe:       headerProbe("/v2/balance", "Authorization", "Bearer "),
	},
}

// LookupVendor returns the vendor registered under name
func LookupVendor(name string) (Vendor, bool) {
	v, ok := vendorCatalog[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Vendors returns the catalog ordered by category then name
func Vendors() []Vendor {
	order := make(map[models.Category]int, len(models.AllCategories))
	for i, c := range models.AllCategories {
		order[c] = i
	}

	vendors := make([]Vendor, 0, len(vendorCatalog))
	for _, v := range vendorCatalog {
		vendors = append(vendors, v)
	}
	sort.Slice(vendors, func(i, j int) bool {
		if vendors[i].Category != vendors[j].Category {
			return order[vendors[i].Category] < order[vendors[j].Category]
		}
		return vendors[i].Name < vendors[j].Name
	})
	return vendors
}

// VendorsByCategory returns the catalog entries for one category
func VendorsByCategory(category models.Category) []Vendor {
	var out []Vendor
	for _, v := range Vendors() {
		if v.Category == category {
			out = append(out, v)
		}
	}
	return out
}

func headerProbe(path, header, prefix string) func(context.Context, string, string) (*http.Request, error) {
	return func(ctx context.Context, baseURL, secret string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(header, prefix+secret)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}
}

func withHeaders(probe func(context.Context, string, string) (*http.Request, error), kv ...string) func(context.Context, string, string) (*http.Request, error) {
	return func(ctx context.Context, baseURL, secret string) (*http.Request, error) {
		req, err := probe(ctx, baseURL, secret)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(kv); i += 2 {
			req.Header.Set(kv[i], kv[i+1])
		}
		return req, nil
	}
}

// twilioProbe fetches the account resource with basic auth
func twilioProbe(ctx context.Context, baseURL, secret string) (*http.Request, error) {
	sid, token, ok := strings.Cut(secret, ":")
	if !ok || sid == "" || token == "" {
		return nil, fmt.Errorf("%w: expected ACCOUNT_SID:AUTH_TOKEN", ErrInvalidCredential)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		baseURL+"/2010-04-01/Accounts/"+url.PathEscape(sid)+".json", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(sid, token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
