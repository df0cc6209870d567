package lang_test

import (
	"context"
	"errors"
	"testing"

	"github.com/grandhotel/concierge/internal/lang"
	"github.com/grandhotel/concierge/pkg/provider/llm"
	llmmock "github.com/grandhotel/concierge/pkg/provider/llm/mock"
)

func TestDetect_ValidTag(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain tag", "pl-PL", "pl-PL"},
		{"tag with whitespace", "  de-DE\n", "de-DE"},
		{"primary subtag only", "en", "en"},
		{"three letter subtag", "fil-PH", "fil-PH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &llmmock.Provider{Response: &llm.CompletionResponse{Content: tt.raw}}
			d := lang.New(p, nil)

			if got := d.Detect(context.Background(), "jakiś tekst"); got != tt.want {
				t.Errorf("Detect: want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDetect_GarbageFallsBack(t *testing.T) {
	tests := []string{
		"The language is Polish (pl-PL).",
		"POLISH",
		"pl_PL",
		"pl-pl",
		"",
	}

	for _, raw := range tests {
		p := &llmmock.Provider{Response: &llm.CompletionResponse{Content: raw}}
		d := lang.New(p, nil)

		if got := d.Detect(context.Background(), "hello"); got != lang.DefaultTag {
			t.Errorf("Detect(%q): want %q, got %q", raw, lang.DefaultTag, got)
		}
	}
}

func TestDetect_ProviderErrorFallsBack(t *testing.T) {
	p := &llmmock.Provider{Err: errors.New("upstream down")}
	d := lang.New(p, nil)

	if got := d.Detect(context.Background(), "bonjour"); got != lang.DefaultTag {
		t.Errorf("Detect: want %q on provider error, got %q", lang.DefaultTag, got)
	}
}

func TestDetect_EmptyInputSkipsProvider(t *testing.T) {
	p := &llmmock.Provider{}
	d := lang.New(p, nil)

	if got := d.Detect(context.Background(), "   "); got != lang.DefaultTag {
		t.Errorf("Detect: want %q for blank input, got %q", lang.DefaultTag, got)
	}
	if p.Calls() != 0 {
		t.Errorf("provider calls: want 0 for blank input, got %d", p.Calls())
	}
}

func TestDetect_DeterministicSettings(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "es-ES"}}
	d := lang.New(p, nil)

	d.Detect(context.Background(), "hola")

	if p.Calls() != 1 {
		t.Fatalf("provider calls: want 1, got %d", p.Calls())
	}
	req := p.CompleteCalls[0].Req
	if req.Temperature == nil {
		t.Error("Temperature: want explicit 0, got nil (provider default)")
	} else if *req.Temperature != 0 {
		t.Errorf("Temperature: want 0, got %v", *req.Temperature)
	}
	if req.SystemPrompt == "" {
		t.Error("SystemPrompt: want detection directive, got empty")
	}
}
