package service

import (
	"strings"

	"github.com/spec-kit/concern-service/internal/domain"
)

// Sentiment is the coarse tone detected in concern text.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// PriorityAnalysis is the classifier output for a concern's free text.
type PriorityAnalysis struct {
	Priority       domain.ConcernPriority `json:"priority"`
	Category       string                 `json:"category"`
	DepartmentHint string                 `json:"department_hint"`
	Sentiment      Sentiment              `json:"sentiment"`
	AutoEscalation bool                   `json:"auto_escalation"`
	Confidence     float64                `json:"confidence"`
}

// Keyword tables are checked in declaration order. Urgent terms win over
// high terms; the first category in the table wins ties.
var urgentKeywords = []string{
	"urgent", "emergency", "immediately", "danger", "dangerous", "threat",
	"fire", "flood", "injury", "injured", "assault", "harassment", "unsafe",
}

var highKeywords = []string{
	"asap", "serious", "broken", "failure", "failing", "cannot", "can't",
	"deadline", "overdue", "missing", "stolen", "leak", "outage",
}

type categoryEntry struct {
	name     string
	keywords []string
}

var categoryTable = []categoryEntry{
	{name: "safety", keywords: []string{"security", "threat", "danger", "unsafe", "assault", "harassment", "fire", "emergency", "theft", "stolen"}},
	{name: "facilities", keywords: []string{"dorm", "room", "building", "heating", "water", "electricity", "elevator", "broken", "repair", "maintenance", "leak"}},
	{name: "academic", keywords: []string{"course", "grade", "exam", "professor", "lecture", "registration", "transcript", "credit", "class"}},
	{name: "financial", keywords: []string{"tuition", "fee", "payment", "refund", "scholarship", "billing", "invoice", "charge"}},
	{name: "it", keywords: []string{"wifi", "network", "password", "login", "account", "portal", "email", "computer", "software"}},
	{name: "health", keywords: []string{"health", "sick", "illness", "doctor", "clinic", "counseling", "mental", "injury"}},
}

// CategoryGeneral is assigned when no category keyword matches.
const CategoryGeneral = "general"

var departmentHints = map[string]string{
	"safety":     "campus-security",
	"facilities": "facilities-management",
	"academic":   "academic-affairs",
	"financial":  "student-finance",
	"it":         "it-services",
	"health":     "student-health",
	CategoryGeneral: "student-services",
}

var positiveKeywords = []string{
	"thanks", "thank", "appreciate", "great", "good", "helpful", "pleased", "happy",
}

var negativeKeywords = []string{
	"angry", "frustrated", "unacceptable", "terrible", "awful", "worst",
	"disappointed", "ignored", "useless", "complaint", "threat", "danger",
}

// ClassifyConcern estimates priority, category, and sentiment from free
// text. It is a pure function: identical input always yields identical
// output, so resubmitting a concern reclassifies it to the same result.
func ClassifyConcern(subject, description string) PriorityAnalysis {
	text := strings.ToLower(subject + " " + description)

	priority := domain.ConcernPriorityMedium
	priorityHits := 0
	if hits := countHits(text, urgentKeywords); hits > 0 {
		priority = domain.ConcernPriorityUrgent
		priorityHits = hits
	} else if hits := countHits(text, highKeywords); hits > 0 {
		priority = domain.ConcernPriorityHigh
		priorityHits = hits
	}

	category := CategoryGeneral
	categoryHits := 0
	for _, entry := range categoryTable {
		hits := countHits(text, entry.keywords)
		if hits > categoryHits {
			category = entry.name
			categoryHits = hits
		}
	}

	sentiment := SentimentNeutral
	positive := countHits(text, positiveKeywords)
	negative := countHits(text, negativeKeywords)
	if positive > negative {
		sentiment = SentimentPositive
	} else if negative > positive {
		sentiment = SentimentNegative
	}

	confidence := 0.4 + 0.15*float64(priorityHits) + 0.1*float64(categoryHits)
	if confidence > 0.95 {
		confidence = 0.95
	}

	return PriorityAnalysis{
		Priority:       priority,
		Category:       category,
		DepartmentHint: departmentHints[category],
		Sentiment:      sentiment,
		AutoEscalation: priority == domain.ConcernPriorityUrgent && sentiment == SentimentNegative,
		Confidence:     confidence,
	}
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits
}
