// Package reports generates the personalized report embedded in nurture
// emails on report steps. When a language model is configured the report
// body is written by the model; otherwise a static template is used, and
// any model failure falls back to the template. Generated reports are
// archived to object storage when configured; archive failures never
// block the send.
package reports

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"iter"
	"strings"

	"leadfunnel_backend/internal/funnel/domain"

	"github.com/minio/minio-go/v7"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"leadfunnel_backend/platform/logger"
)

// Subject is the lead profile a report is personalized for.
type Subject struct {
	LeadID   string
	Name     string
	Company  string
	Goals    string
	LeadType domain.LeadType
}

// TextModel produces free text from a prompt. Satisfied by the moonshot
// model adapter.
type TextModel interface {
	GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error]
}

// reportKind names the report produced for a lead type at a step.
type reportKind struct {
	Title string
	Blurb string
}

// kinds is the report matrix: lead type x report step.
var kinds = map[domain.LeadType]map[int]reportKind{
	domain.LeadTypeConnect: {
		3: {"Getting Started Playbook", "The three workflows most teams automate first, and what each takes to set up."},
		5: {"30-Day Results Benchmark", "What teams at your stage typically see after their first month."},
		7: {"Growth Roadmap", "A staged plan for expanding from one workflow to a full rollout."},
	},
	domain.LeadTypeWholesale: {
		3: {"Volume Pricing Overview", "How tiered pricing works at wholesale quantities, with worked examples."},
		5: {"Fulfillment & Logistics Brief", "Lead times, minimums, and how reordering works in practice."},
		7: {"Partner Economics Model", "Margin structure across order volumes for a partnership at your scale."},
	},
	domain.LeadTypeAffiliate: {
		3: {"Affiliate Program Guide", "Commission structure, tracking, and payout schedule in one page."},
		5: {"Top Performer Tactics", "What the highest-earning affiliates do differently."},
		7: {"Audience Fit Analysis", "Which of our offers convert best for audiences like yours."},
	},
}

const reportTemplate = `<h2 style="margin:0 0 8px 0;font-size:18px;color:#1a1a2e;">{{.Title}}</h2>
<p style="margin:0 0 8px 0;">{{.Blurb}}</p>
{{if .CompanyLine}}<p style="margin:0 0 8px 0;">{{.CompanyLine}}</p>{{end}}
{{if .GoalsLine}}<p style="margin:0;">{{.GoalsLine}}</p>{{end}}`

var reportTmpl = template.Must(template.New("report").Parse(reportTemplate))

// Generator builds and archives reports.
type Generator struct {
	store  *minio.Client
	bucket string
	llm    TextModel
	log    *logger.Logger
}

// NewGenerator creates a report generator. store may be nil, in which
// case reports are generated but not archived. llm may be nil, in which
// case the static template is used.
func NewGenerator(store *minio.Client, bucket string, llm TextModel, log *logger.Logger) *Generator {
	return &Generator{store: store, bucket: bucket, llm: llm, log: log}
}

// Generate renders the report HTML for the lead at the given step.
// Returns an empty string for non-report steps.
func (g *Generator) Generate(ctx context.Context, subject Subject, step int) (string, error) {
	if !domain.IsReportStep(step) {
		return "", nil
	}

	leadType := subject.LeadType
	if _, ok := kinds[leadType]; !ok {
		leadType = domain.LeadTypeConnect
	}
	kind := kinds[leadType][step]

	html, err := renderTemplate(subject, kind)
	if err != nil {
		return "", err
	}

	if g.llm != nil {
		body, perr := g.personalize(ctx, subject, kind)
		if perr != nil {
			g.log.Warn("report personalization failed, using template",
				"lead_id", subject.LeadID, "step", step, "error", perr.Error())
		} else {
			html = personalizedHTML(kind.Title, body)
		}
	}

	g.archive(ctx, subject.LeadID, step, html)

	return html, nil
}

func renderTemplate(subject Subject, kind reportKind) (string, error) {
	data := struct {
		Title       string
		Blurb       string
		CompanyLine string
		GoalsLine   string
	}{
		Title: kind.Title,
		Blurb: kind.Blurb,
	}
	if strings.TrimSpace(subject.Company) != "" {
		data.CompanyLine = fmt.Sprintf("We've tailored this for %s.", subject.Company)
	}
	if strings.TrimSpace(subject.Goals) != "" {
		data.GoalsLine = fmt.Sprintf("It speaks directly to what you told us: %q.", subject.Goals)
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// personalize asks the model for the report body. The prompt forbids
// markup; the result is escaped before it lands in an email.
func (g *Generator) personalize(ctx context.Context, subject Subject, kind reportKind) (string, error) {
	prompt := fmt.Sprintf(`You are writing the body of a short report section inside a nurture email.
Report: %s. Angle: %s
Recipient: %s, company: %s, lead type: %s.
Their stated goals: %s
Write two short paragraphs of plain text addressed to the recipient, grounded in their goals.
No greeting, no sign-off, no markdown, no HTML.`,
		kind.Title, kind.Blurb,
		orUnknown(subject.Name), orUnknown(subject.Company), string(subject.LeadType),
		orUnknown(subject.Goals))

	req := &model.LLMRequest{
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(prompt)},
		}},
	}

	for resp, err := range g.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil && strings.TrimSpace(part.Text) != "" {
				return strings.TrimSpace(part.Text), nil
			}
		}
	}
	return "", fmt.Errorf("model returned no text")
}

// personalizedHTML wraps model-written paragraphs in the same markup
// the template produces.
func personalizedHTML(title, body string) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, `<h2 style="margin:0 0 8px 0;font-size:18px;color:#1a1a2e;">%s</h2>`,
		template.HTMLEscapeString(title))
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		buf.WriteString("\n")
		fmt.Fprintf(&buf, `<p style="margin:0 0 8px 0;">%s</p>`, template.HTMLEscapeString(para))
	}
	return buf.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func (g *Generator) archive(ctx context.Context, leadID string, step int, html string) {
	if g.store == nil {
		return
	}

	key := fmt.Sprintf("reports/%s/step-%d.html", leadID, step)
	reader := strings.NewReader(html)
	_, err := g.store.PutObject(ctx, g.bucket, key, reader, int64(len(html)), minio.PutObjectOptions{
		ContentType: "text/html",
	})
	if err != nil {
		g.log.Warn("report archive failed", "lead_id", leadID, "step", step, "error", err.Error())
	}
}
