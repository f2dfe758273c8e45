package vision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONVerdictParser_Parse(t *testing.T) {
	valid := `{"criteriaResults":[true,false],"overallSuccess":false,"whatISee":"checkout page","confidence":0.7,"evidenceDetails":"total shown"}`

	tests := []struct {
		name    string
		input   string
		count   int
		wantErr bool
	}{
		{"plain json", valid, 2, false},
		{"fenced json", "```json\n" + valid + "\n```", 2, false},
		{"fenced without info string", "```\n" + valid + "\n```", 2, false},
		{"prose around json", "Here is my verdict: " + valid + " Thanks.", 2, false},
		{"too few results", valid, 3, true},
		{"too many results", valid, 1, true},
		{"missing criteriaResults", `{"overallSuccess":true}`, 0, true},
		{"not json", "the page looks fine", 2, true},
		{"broken json", `{"criteriaResults":[true,`, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := JSONVerdictParser{}.Parse(tt.input, tt.count)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParseFailure)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []bool{true, false}, verdict.CriteriaResults)
			assert.Equal(t, "checkout page", verdict.WhatISee)
		})
	}
}

func TestJSONVerdictParser_ClampsConfidence(t *testing.T) {
	verdict, err := JSONVerdictParser{}.Parse(`{"criteriaResults":[true],"overallSuccess":true,"confidence":7}`, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, verdict.Confidence)

	verdict, err = JSONVerdictParser{}.Parse(`{"criteriaResults":[true],"overallSuccess":true,"confidence":-2}`, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, verdict.Confidence)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Request{
		Criteria:     []string{"Cart shows 2 items", "Checkout button enabled"},
		Action:       "Add product to cart",
		ExpectedURL:  "https://shop.example.com/cart",
		ExpectedText: "Your cart",
	})

	assert.Contains(t, prompt, "Action performed: Add product to cart")
	assert.Contains(t, prompt, "Expected URL: https://shop.example.com/cart")
	assert.Contains(t, prompt, "Expected visible text: Your cart")
	assert.Contains(t, prompt, "1. Cart shows 2 items\n2. Checkout button enabled")
	assert.Contains(t, prompt, "exactly 2 booleans")
	assert.Contains(t, prompt, "criteriaResults")
	assert.True(t, strings.Contains(prompt, "blank, loading or error page"))
}

func TestBuildPrompt_OmitsEmptyHints(t *testing.T) {
	prompt := BuildPrompt(Request{Criteria: []string{"x"}, Action: "click"})

	assert.NotContains(t, prompt, "Expected URL")
	assert.NotContains(t, prompt, "Expected visible text")
}
