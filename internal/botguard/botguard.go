// Package botguard scores form submissions for signs of automation.
//
// Scoring is a fixed table of weighted rules summed into a confidence value;
// a submission at or above Threshold is treated as a bot. The score is not a
// probability and the weights are not tunable at call time.
package botguard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Threshold is the confidence at which a submission counts as a bot.
const Threshold = 50

// Result is the outcome of DetectBot.
type Result struct {
	IsBot      bool     `json:"is_bot"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Submission is the read-only input every rule sees.
type Submission struct {
	Form      map[string]string
	UserAgent string
}

// field reports a form value and whether the key was submitted at all. A key
// sent with an empty value is present, the rule then judges the value.
func (s Submission) field(name string) (string, bool) {
	v, ok := s.Form[name]
	return v, ok
}

// Rule is one line of the scoring table.
type Rule struct {
	Name   string
	Weight int
	Reason string
	Match  func(Submission) bool
}

var (
	botAgents = []string{"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "java", "go-http", "node"}

	suspiciousEmails = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^[a-z]+\d+@[a-z]+\.[a-z]+$`),
		regexp.MustCompile(`(?i)^(test|demo|example|admin|user)@`),
	}

	// HoneypotFields are the form fields a human never sees.
	HoneypotFields = []string{"website", "url", "website_url"}
)

// rules is evaluated in order, which fixes the order of Result.Reasons.
var rules = []Rule{
	{
		Name:   "bot_user_agent",
		Weight: 30,
		Reason: "Bot user agent detected",
		Match: func(s Submission) bool {
			if s.UserAgent == "" {
				return false
			}
			ua := strings.ToLower(s.UserAgent)
			for _, sub := range botAgents {
				if strings.Contains(ua, sub) {
					return true
				}
			}
			return false
		},
	},
	{
		Name:   "suspicious_email",
		Weight: 20,
		Reason: "Suspicious email pattern",
		Match: func(s Submission) bool {
			email, ok := s.field("email")
			if !ok {
				return false
			}
			for _, re := range suspiciousEmails {
				if re.MatchString(email) {
					return true
				}
			}
			return false
		},
	},
	{
		Name:   "honeypot",
		Weight: 50,
		Reason: "Honeypot field filled",
		Match:  func(s Submission) bool { return ValidateHoneypot(s.Form) },
	},
	{
		Name:   "short_message",
		Weight: 10,
		Reason: "Message too short",
		Match: func(s Submission) bool {
			msg, ok := s.field("message")
			return ok && utf8.RuneCountInString(msg) < 10
		},
	},
	{
		Name:   "short_name",
		Weight: 10,
		Reason: "Name too short",
		Match: func(s Submission) bool {
			name, ok := s.field("name")
			return ok && utf8.RuneCountInString(name) < 2
		},
	},
}

// Rules returns a copy of the scoring table.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// DetectBot scores form and the optional user agent ("" when absent).
// It never fails: missing fields simply do not trigger their rule.
func DetectBot(form map[string]string, userAgent string) Result {
	res, _ := Score(Submission{Form: form, UserAgent: userAgent})
	return res
}

// Score is DetectBot that also returns the names of the rules that fired,
// used as metric labels.
func Score(s Submission) (Result, []string) {
	res := Result{Reasons: []string{}}
	var fired []string
	for _, r := range rules {
		if r.Match(s) {
			res.Confidence += r.Weight
			res.Reasons = append(res.Reasons, r.Reason)
			fired = append(fired, r.Name)
		}
	}
	res.IsBot = res.Confidence >= Threshold
	return res, fired
}

// ValidateHoneypot reports whether any honeypot field holds a non-empty
// value. Whitespace counts as filled.
func ValidateHoneypot(form map[string]string) bool {
	for _, name := range HoneypotFields {
		if form[name] != "" {
			return true
		}
	}
	return false
}

// HoneypotField describes the hidden input the site renders on every form.
type HoneypotField struct {
	Name       string            `json:"name"`
	Style      map[string]string `json:"style"`
	Attributes map[string]string `json:"attributes"`
}

// GenerateHoneypotField returns the field the SPA renders off-screen. A fresh
// value is returned on each call, callers may modify it.
func GenerateHoneypotField() HoneypotField {
	return HoneypotField{
		Name: "website_url",
		Style: map[string]string{
			"position":       "absolute",
			"left":           "-9999px",
			"width":          "0",
			"height":         "0",
			"opacity":        "0",
			"pointer-events": "none",
		},
		Attributes: map[string]string{
			"tabindex":     "-1",
			"autocomplete": "off",
			"aria-hidden":  "true",
		},
	}
}
