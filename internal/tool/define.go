package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const dictionaryAPIURL = "https://api.dictionaryapi.dev/api/v2/entries/en"

// builtinGlossary answers common terms without a network round trip.
var builtinGlossary = map[string]string{
	"api":        "Application Programming Interface — a set of rules that allow different software applications to communicate with each other.",
	"frontend":   "The part of a website or application that users interact with directly.",
	"backend":    "The server-side of a website or application that works behind the scenes.",
	"gemini":     "A family of multimodal large language models developed by Google DeepMind.",
	"tool use":   "The capability of AI systems to use external tools to accomplish tasks.",
	"golang":     "An open-source programming language designed at Google for building simple, reliable, and efficient software.",
	"agent":      "A program that pursues a goal by deciding which actions (including tool invocations) to take.",
	"websocket":  "A protocol providing full-duplex communication channels over a single TCP connection.",
	"typescript": "A strongly typed programming language that builds on JavaScript.",
}

// NewDefineTool returns the lookup_definition tool backed by the free
// dictionary API with a small built-in glossary fallback. Definitions are
// stable, so results are cacheable.
func NewDefineTool(baseURL string, timeout, cacheTTL time.Duration) *Tool {
	return &Tool{
		Name:        "lookup_definition",
		Description: "Look up the definition of a term or word",
		InputSchema: `{"type":"object","properties":{"term":{"type":"string","description":"The term to define"}},"required":["term"]}`,
		Validate:    requireString("term"),
		Cacheable:   true,
		CacheTTL:    cacheTTL,
		Timeout:     timeout,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			term, err := stringArg(input, "term")
			if err != nil {
				return nil, err
			}
			if def, ok := builtinGlossary[strings.ToLower(term)]; ok {
				return fmt.Sprintf("%s: %s", term, def), nil
			}
			return lookupDictionary(ctx, baseURL, term)
		},
	}
}

type dictionaryEntry struct {
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

func lookupDictionary(ctx context.Context, baseURL, term string) (any, error) {
	endpoint := baseURL + "/" + url.PathEscape(term)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building dictionary request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dictionary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Sprintf("Sorry, I couldn't find a definition for %q.", term), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dictionary API error (%d)", resp.StatusCode)
	}

	var entries []dictionaryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing dictionary response: %w", err)
	}
	if len(entries) == 0 || len(entries[0].Meanings) == 0 || len(entries[0].Meanings[0].Definitions) == 0 {
		return fmt.Sprintf("Sorry, I couldn't find a definition for %q.", term), nil
	}

	meaning := entries[0].Meanings[0]
	return fmt.Sprintf("%s (%s): %s", term, meaning.PartOfSpeech, meaning.Definitions[0].Definition), nil
}
