// internal/common/webhook/fallback.go
package webhook

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Defaults used when no keyword of a group matches.
const (
	DefaultIndustry    = "Technologie"
	DefaultJobTitle    = "Manager"
	DefaultLocation    = "Deutschland"
	DefaultCompanySize = "50-200"

	DefaultFallbackReason = "webhook unavailable"

	minEstimatedLeads = 50
	maxEstimatedLeads = 350
)

// keywordRule maps any of its keywords (lower case substrings) to a value.
type keywordRule struct {
	keywords []string
	value    string
}

// Rules are evaluated in order and the first match wins, so longer or more
// specific phrases precede the short ones they contain ("director" before
// "cto", "technischer leiter" before "leiter").
var (
	industryRules = []keywordRule{
		{[]string{"fintech", "finanz", "bank", "versicherung", "finance", "insurance"}, "Finanzdienstleistungen"},
		{[]string{"gesundheit", "health", "medizin", "pharma", "klinik", "medtech"}, "Gesundheitswesen"},
		{[]string{"e-commerce", "ecommerce", "onlinehandel", "onlineshop", "retail"}, "E-Commerce"},
		{[]string{"marketing", "agentur", "werbung", "agency"}, "Marketing & Werbung"},
		{[]string{"beratung", "consulting", "berater"}, "Unternehmensberatung"},
		{[]string{"immobilien", "real estate", "proptech"}, "Immobilien"},
		{[]string{"logistik", "spedition", "logistics"}, "Logistik"},
		{[]string{"maschinenbau", "fertigung", "produktion", "manufacturing", "automotive"}, "Industrie & Fertigung"},
		{[]string{"bildung", "edtech", "education", "schule"}, "Bildung"},
		{[]string{"software", "saas", "tech", "digital", "cloud", "informatik"}, "Technologie"},
	}

	jobTitleRules = []keywordRule{
		{[]string{"chief technology", "technischer leiter", "technische leitung"}, "CTO"},
		{[]string{"chief marketing", "marketingleiter", "marketing-leiter"}, "CMO"},
		{[]string{"chief financial", "finanzleiter", "finanzvorstand"}, "CFO"},
		{[]string{"personalleiter", "hr manager", "hr-manager", "head of hr", "recruiting"}, "HR Manager"},
		{[]string{"vertriebsleiter", "head of sales", "sales director", "vertrieb", "sales"}, "Sales Manager"},
		{[]string{"director", "direktor", "head of", "abteilungsleiter", "leiter"}, "Director"},
		{[]string{"cto"}, "CTO"},
		{[]string{"cmo"}, "CMO"},
		{[]string{"cfo"}, "CFO"},
		{[]string{"ceo", "geschäftsführer", "geschaeftsfuehrer", "gründer", "gruender", "founder", "inhaber"}, "CEO"},
		{[]string{"entwickler", "developer", "engineer", "programmierer"}, "Software Engineer"},
		{[]string{"einkauf", "procurement", "purchasing"}, "Einkaufsleiter"},
	}

	locationRules = []keywordRule{
		{[]string{"berlin"}, "Berlin, Deutschland"},
		{[]string{"münchen", "muenchen", "munich"}, "München, Deutschland"},
		{[]string{"hamburg"}, "Hamburg, Deutschland"},
		{[]string{"köln", "koeln", "cologne"}, "Köln, Deutschland"},
		{[]string{"frankfurt"}, "Frankfurt am Main, Deutschland"},
		{[]string{"stuttgart"}, "Stuttgart, Deutschland"},
		{[]string{"düsseldorf", "duesseldorf"}, "Düsseldorf, Deutschland"},
		{[]string{"leipzig"}, "Leipzig, Deutschland"},
		{[]string{"dresden"}, "Dresden, Deutschland"},
		{[]string{"hannover"}, "Hannover, Deutschland"},
		{[]string{"nürnberg", "nuernberg", "nuremberg"}, "Nürnberg, Deutschland"},
		{[]string{"wien", "vienna", "österreich", "oesterreich", "austria"}, "Österreich"},
		{[]string{"zürich", "zuerich", "zurich", "schweiz", "switzerland"}, "Schweiz"},
		{[]string{"dach-region", "dach region", " dach"}, "DACH-Region"},
		{[]string{"deutschland", "germany"}, "Deutschland"},
	}

	companySizeRules = []keywordRule{
		{[]string{"startup", "start-up", "gründer", "gruender", "founder"}, "1-10"},
		{[]string{"kleinunternehmen", "kleine unternehmen", "kleinen unternehmen", "small business"}, "11-50"},
		{[]string{"konzern", "großunternehmen", "grossunternehmen", "enterprise", "corporate"}, "1000+"},
		{[]string{"mittelstand", "mittelständ", "mittelstaend", "kmu"}, "50-200"},
	}
)

func matchRule(text string, rules []keywordRule) (string, bool) {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.value, true
			}
		}
	}
	return "", false
}

// FallbackGenerator synthesizes a plausible answer from the outbound payload
// alone. It performs no I/O.
type FallbackGenerator struct {
	intN func(n int) int
}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{intN: rand.IntN}
}

// NewSeededFallbackGenerator fixes the source of estimatedLeads. The
// result is not safe for concurrent use.
func NewSeededFallbackGenerator(seed uint64) *FallbackGenerator {
	r := rand.New(rand.NewPCG(seed, seed))
	return &FallbackGenerator{intN: r.IntN}
}

func (g *FallbackGenerator) Generate(payload OutboundPayload) InboundResult {
	return g.GenerateWithReason(payload, DefaultFallbackReason)
}

// GenerateWithReason is Generate with an explicit debug.fallbackReason.
func (g *FallbackGenerator) GenerateWithReason(payload OutboundPayload, reason string) InboundResult {
	params := g.Parameters(payload)
	if reason == "" {
		reason = DefaultFallbackReason
	}
	return InboundResult{
		Success:              true,
		Message:              "Antwort im Fallback-Modus erzeugt",
		AnswerText:           fallbackAnswer(params),
		StructuredParameters: &params,
		ResponseShape:        ShapeFallback,
		Debug: Debug{
			FallbackActivated: true,
			FallbackReason:    reason,
		},
	}
}

// Parameters extracts search criteria from the primary text. A keyword in
// the text wins over the payload's target audience, which wins over the
// defaults.
func (g *FallbackGenerator) Parameters(payload OutboundPayload) StructuredParameters {
	text := strings.ToLower(payload.PrimaryText)
	audience := payload.TargetAudience
	if audience == nil {
		audience = &TargetAudience{}
	}

	pick := func(rules []keywordRule, fromAudience, def string) string {
		if v, ok := matchRule(text, rules); ok {
			return v
		}
		if strings.TrimSpace(fromAudience) != "" {
			return fromAudience
		}
		return def
	}

	return StructuredParameters{
		Industry:       pick(industryRules, audience.Industry, DefaultIndustry),
		JobTitle:       pick(jobTitleRules, audience.JobTitle, DefaultJobTitle),
		Location:       pick(locationRules, audience.Location, DefaultLocation),
		CompanySize:    pick(companySizeRules, audience.CompanySize, DefaultCompanySize),
		TechStack:      audience.TechStack,
		EstimatedLeads: minEstimatedLeads + g.intN(maxEstimatedLeads-minEstimatedLeads),
	}
}

func fallbackAnswer(p StructuredParameters) string {
	var b strings.Builder
	b.WriteString("Der KI-Workflow ist momentan nicht erreichbar. Die Suchparameter wurden deshalb lokal aus Ihrer Anfrage abgeleitet (Fallback-Modus).\n\n")
	fmt.Fprintf(&b, "Branche: %s\n", p.Industry)
	fmt.Fprintf(&b, "Position: %s\n", p.JobTitle)
	fmt.Fprintf(&b, "Standort: %s\n", p.Location)
	fmt.Fprintf(&b, "Unternehmensgröße: %s Mitarbeiter\n", p.CompanySize)
	if p.TechStack != "" {
		fmt.Fprintf(&b, "Tech-Stack: %s\n", p.TechStack)
	}
	fmt.Fprintf(&b, "Geschätzte Leads: ca. %d\n\n", p.EstimatedLeads)
	b.WriteString("Bitte prüfen Sie die Parameter und starten Sie die Lead-Suche über den vorausgefüllten Link.")
	return b.String()
}
