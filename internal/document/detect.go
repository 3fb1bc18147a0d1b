package document

import (
	"regexp"
	"sort"
	"strings"
)

const (
	EntityName  = "NAME"
	EntitySSN   = "SSN"
	EntityDOB   = "DOB"
	EntityEmail = "EMAIL"
)

// Entity is one PII span found in a document. The raw value is kept out of
// JSON so detection results can be returned to callers.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"-"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start_pos"`
	End        int     `json:"end_pos"`
}

type Detection struct {
	Entities []Entity
}

var (
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	dobPattern   = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4})\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	namePattern  = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+){1,2}\b`)

	// "Patient Name: Jane Doe", "Name: Jane Doe", "Patient: Jane Doe"
	labeledName = regexp.MustCompile(`(?m)^[ \t]*(?:Patient(?: Full)? Name|Full Name|Name|Patient)[ \t]*:[ \t]*([A-Z][A-Za-z'\-]+(?: [A-Z][A-Za-z'\-]+){1,2})`)
)

var nameStopList = map[string]bool{
	"Patient Name":   true,
	"Doctor Name":    true,
	"Full Name":      true,
	"First Name":     true,
	"Last Name":      true,
	"Medical Record": true,
	"Health History": true,
	"Lab Results":    true,
	"Date Of Birth":  true,
}

// DetectPII finds SSNs, dates of birth, email addresses and person names.
// A labelled name line outranks free-standing capitalised phrases.
func DetectPII(text string) Detection {
	var entities []Entity
	add := func(typ string, conf float64, start, end int) {
		entities = append(entities, Entity{Type: typ, Value: text[start:end], Confidence: conf, Start: start, End: end})
	}

	for _, m := range ssnPattern.FindAllStringIndex(text, -1) {
		add(EntitySSN, 0.98, m[0], m[1])
	}
	for _, m := range dobPattern.FindAllStringIndex(text, -1) {
		add(EntityDOB, 0.92, m[0], m[1])
	}
	for _, m := range emailPattern.FindAllStringIndex(text, -1) {
		add(EntityEmail, 0.95, m[0], m[1])
	}

	seen := make(map[string]bool)
	for _, m := range labeledName.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if seen[name] {
			continue
		}
		seen[name] = true
		add(EntityName, 0.95, m[2], m[3])
	}
	for _, m := range namePattern.FindAllStringIndex(text, -1) {
		name := text[m[0]:m[1]]
		if nameStopList[name] || seen[name] || overlaps(entities, m[0], m[1]) {
			continue
		}
		seen[name] = true
		add(EntityName, 0.85, m[0], m[1])
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})
	return Detection{Entities: entities}
}

// Best returns the highest-confidence entity of the given type, earliest
// first on ties.
func (d Detection) Best(typ string) (Entity, bool) {
	var best Entity
	found := false
	for _, e := range d.Entities {
		if e.Type != typ {
			continue
		}
		if !found || e.Confidence > best.Confidence {
			best, found = e, true
		}
	}
	return best, found
}

// Fields maps the best entity per type onto vault field names.
func (d Detection) Fields() map[string]string {
	fields := make(map[string]string)
	for typ, field := range map[string]string{
		EntityName:  "name",
		EntitySSN:   "ssn",
		EntityDOB:   "dob",
		EntityEmail: "email",
	} {
		if e, ok := d.Best(typ); ok {
			fields[field] = e.Value
		}
	}
	return fields
}

func (d Detection) Confidence(typ string) float64 {
	e, _ := d.Best(typ)
	return e.Confidence
}

// Redact replaces every detected value with a [TYPE] placeholder.
func (d Detection) Redact(text string) string {
	var b strings.Builder
	last := 0
	for _, e := range d.Entities {
		if e.Start < last || e.End > len(text) {
			continue
		}
		b.WriteString(text[last:e.Start])
		b.WriteString("[" + e.Type + "]")
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlaps(entities []Entity, start, end int) bool {
	for _, e := range entities {
		if start < e.End && e.Start < end {
			return true
		}
	}
	return false
}

var conditionKeywords = []struct {
	condition string
	keywords  []string
}{
	{"Diabetes", []string{"diabetes"}},
	{"Hypertension", []string{"hypertension"}},
	{"Asthma", []string{"asthma"}},
	{"Cardiac", []string{"coronary", "cardiac"}},
}

// InferCondition picks the first known condition mentioned in text, or
// "Unknown".
func InferCondition(text string) string {
	lower := strings.ToLower(text)
	for _, c := range conditionKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.condition
			}
		}
	}
	return "Unknown"
}
