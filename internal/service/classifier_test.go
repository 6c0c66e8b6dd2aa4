package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/concern-service/internal/domain"
)

func TestClassifyConcernUrgentSafety(t *testing.T) {
	analysis := ClassifyConcern("URGENT: security threat near dorm", "There is a dangerous situation outside the building.")

	assert.Equal(t, domain.ConcernPriorityUrgent, analysis.Priority)
	assert.Equal(t, "safety", analysis.Category)
	assert.Equal(t, "campus-security", analysis.DepartmentHint)
	assert.True(t, analysis.AutoEscalation)
}

func TestClassifyConcernUrgentWinsOverCategoryKeywords(t *testing.T) {
	// Category keywords alone must never outweigh an urgent keyword.
	cases := []string{
		"emergency in the dorm heating system",
		"urgent question about my tuition refund",
		"wifi outage is dangerous for my exam",
	}
	for _, text := range cases {
		analysis := ClassifyConcern(text, "")
		assert.Equal(t, domain.ConcernPriorityUrgent, analysis.Priority, text)
	}
}

func TestClassifyConcernHighAndDefault(t *testing.T) {
	high := ClassifyConcern("Projector broken in lecture hall", "It keeps failing before the deadline.")
	assert.Equal(t, domain.ConcernPriorityHigh, high.Priority)

	medium := ClassifyConcern("Question about my transcript", "When will it be ready?")
	assert.Equal(t, domain.ConcernPriorityMedium, medium.Priority)
	assert.Equal(t, "academic", medium.Category)
}

func TestClassifyConcernGeneralFallback(t *testing.T) {
	analysis := ClassifyConcern("A question", "Just wondering about something.")
	assert.Equal(t, CategoryGeneral, analysis.Category)
	assert.Equal(t, "student-services", analysis.DepartmentHint)
	assert.Equal(t, SentimentNeutral, analysis.Sentiment)
	assert.False(t, analysis.AutoEscalation)
}

func TestClassifyConcernSentiment(t *testing.T) {
	positive := ClassifyConcern("Thanks for the great support", "Really appreciate the helpful staff.")
	assert.Equal(t, SentimentPositive, positive.Sentiment)

	negative := ClassifyConcern("This is unacceptable", "I am frustrated and feel ignored.")
	assert.Equal(t, SentimentNegative, negative.Sentiment)
}

func TestClassifyConcernConfidenceBounds(t *testing.T) {
	minimal := ClassifyConcern("hello", "world")
	assert.InDelta(t, 0.4, minimal.Confidence, 0.001)

	loaded := ClassifyConcern(
		"urgent emergency danger threat fire flood injury assault harassment unsafe",
		"security theft stolen dorm heating water broken leak",
	)
	assert.LessOrEqual(t, loaded.Confidence, 0.95)
}

func TestClassifyConcernDeterministic(t *testing.T) {
	first := ClassifyConcern("Broken elevator in dorm", "The elevator is broken again, serious issue.")
	second := ClassifyConcern("Broken elevator in dorm", "The elevator is broken again, serious issue.")
	assert.Equal(t, first, second)
}
