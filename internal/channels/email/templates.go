package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type nurtureEmailData struct {
	baseEmailData
	LeadName   string
	Paragraphs []string
	ReportHTML template.HTML
}

type bookedEmailData struct {
	baseEmailData
	LeadName string
	CallTime string
	Location string
}

type replyEmailData struct {
	baseEmailData
	LeadName string
	Body     string
}

// stepBodies holds the nurture copy per sequence step. A step without
// an entry falls back to the generic check-in copy.
var stepBodies = map[int][]string{
	1: {
		"Thanks for reaching out - you're in the right place.",
		"Over the next few weeks we'll send you a short series of notes covering how teams like yours get up and running, what results to expect, and answers to the questions we hear most often.",
		"If you'd rather skip ahead, grab a time that suits you and we'll walk you through it live.",
	},
	2: {
		"Most teams start in one of three ways: a guided pilot, a self-serve trial, or a working session with our specialists.",
		"Whichever route fits, the first week is about getting one real workflow live end to end.",
	},
	4: {
		"Just checking in - you're about ten days into the series now.",
		"If anything has been unclear, reply to this email and a real person will pick it up.",
	},
	6: {
		"One of our customers recently cut their turnaround time in half within a month of starting.",
		"Their setup took an afternoon. If you'd like the same walkthrough, the link below books it.",
	},
	8: {
		"This is the last note in the series - we won't keep filling your inbox.",
		"If the timing wasn't right, no problem at all. The door stays open, and the booking link below will keep working whenever you're ready.",
	},
}

var fallbackBody = []string{
	"A quick note from us - we're here when you're ready to take the next step.",
	"Reply to this email or book a time below and we'll take it from there.",
}

// StepParagraphs returns the nurture copy for a step.
func StepParagraphs(step int) []string {
	if body, ok := stepBodies[step]; ok {
		return body
	}
	return fallbackBody
}

func renderEmailTemplate(name string, data interface{}) (string, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}

	return buf.String(), nil
}
