package solo

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	// DefaultLanguage is used when no language is requested.
	DefaultLanguage = "es"
	// FallbackLanguage is used for requested languages without a phrasing set.
	FallbackLanguage = "en"
)

// Phrasing is one language's set of next-step prompt templates.
type Phrasing struct {
	DefaultTopic string
	Explore      func(title string) string
	ListFacts    func(title string) string
	Connect      func(title string) string
	Synthesize   func(title string) string
	Progress     func(target, title string) string
}

var phrasings = map[string]Phrasing{
	"es": {
		DefaultTopic: "el tema",
		Explore: func(title string) string {
			return fmt.Sprintf("Explora el recurso y anota una idea clave sobre %s. ¿Qué ves que te llama la atención?", title)
		},
		ListFacts: func(title string) string {
			return fmt.Sprintf("Lee el sitio y menciona al menos tres datos sobre %s. ¿Qué sección respalda cada dato?", title)
		},
		Connect: func(title string) string {
			return fmt.Sprintf("Relaciona dos ideas del sitio sobre %s. ¿Cómo se conectan entre sí?", title)
		},
		Synthesize: func(title string) string {
			return fmt.Sprintf("Elabora una explicación general sobre %s. ¿Qué nueva idea puedes proponer?", title)
		},
		Progress: func(target, title string) string {
			return fmt.Sprintf("Usa el sitio para avanzar hacia %s: escribe 3–4 oraciones sobre %s.", target, title)
		},
	},
	"en": {
		DefaultTopic: "the topic",
		Explore: func(title string) string {
			return fmt.Sprintf("Explore the resource and note one key idea about %s. What stands out to you?", title)
		},
		ListFacts: func(title string) string {
			return fmt.Sprintf("Read the resource and list at least three facts about %s. Which section supports each fact?", title)
		},
		Connect: func(title string) string {
			return fmt.Sprintf("Connect two ideas from the resource about %s. How do they relate?", title)
		},
		Synthesize: func(title string) string {
			return fmt.Sprintf("Synthesize a big-picture explanation about %s. What new idea can you propose?", title)
		},
		Progress: func(target, title string) string {
			return fmt.Sprintf("Use the resource to progress toward %s: write 3–4 sentences about %s.", target, title)
		},
	},
}

// ResolveLanguage maps a requested language tag ("es", "es-MX", "en_US")
// to the key of a known phrasing set. Empty input selects DefaultLanguage.
func ResolveLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return DefaultLanguage
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return FallbackLanguage
	}
	base, _ := tag.Base()
	if _, ok := phrasings[base.String()]; ok {
		return base.String()
	}
	return FallbackLanguage
}

// PhrasingFor returns the phrasing set for a language tag.
func PhrasingFor(lang string) Phrasing {
	return phrasings[ResolveLanguage(lang)]
}

type promptRule struct {
	currentPrefix  string
	targetContains string
	render         func(p Phrasing, target, title string) string
}

var promptRules = []promptRule{
	{currentPrefix: "pre", render: func(p Phrasing, _, title string) string { return p.Explore(title) }},
	{currentPrefix: "uni", targetContains: "multi", render: func(p Phrasing, _, title string) string { return p.ListFacts(title) }},
	{currentPrefix: "multi", targetContains: "relational", render: func(p Phrasing, _, title string) string { return p.Connect(title) }},
	{currentPrefix: "relat", targetContains: "extended", render: func(p Phrasing, _, title string) string { return p.Synthesize(title) }},
}

// NextStepPrompt builds a localized question nudging the student from the
// current level toward the target level for the given topic title.
func NextStepPrompt(current, target, title, lang string) string {
	p := PhrasingFor(lang)
	if title == "" {
		title = p.DefaultTopic
	}

	cur := strings.ToLower(current)
	tgt := strings.ToLower(target)
	for _, rule := range promptRules {
		if !strings.HasPrefix(cur, rule.currentPrefix) {
			continue
		}
		if rule.targetContains != "" && !strings.Contains(tgt, rule.targetContains) {
			continue
		}
		return rule.render(p, target, title)
	}
	return p.Progress(target, title)
}
