package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwulff/panelscribe/internal/interview"
)

// Compile renders the session report: an overview, one section per
// analyzed question and, when more than one succeeded, overall insights.
func Compile(s *interview.Session, results []QuestionResult, now time.Time) string {
	succeeded := 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		}
	}

	var b strings.Builder
	b.WriteString("# Complete Session Analysis Report\n\n")
	b.WriteString("## Session Overview\n")
	fmt.Fprintf(&b, "- **Students**: %s\n", strings.Join(s.Students, ", "))
	fmt.Fprintf(&b, "- **Total Questions**: %d\n", len(s.Questions))
	fmt.Fprintf(&b, "- **Questions Analyzed**: %d\n", succeeded)
	fmt.Fprintf(&b, "- **Session Duration**: %s\n", sessionDuration(s, now))
	fmt.Fprintf(&b, "- **Analysis Date**: %s\n\n", now.Format("January 2, 2006"))
	b.WriteString("---\n\n")

	for _, r := range results {
		fmt.Fprintf(&b, "## Question %d Analysis\n\n", r.Number)
		fmt.Fprintf(&b, "**Question**: \"%s\"\n\n", r.Question)
		if r.OK() {
			b.WriteString(r.Analysis)
		} else {
			fmt.Fprintf(&b, "**Analysis Error**: Analysis failed: %v", r.Err)
		}
		b.WriteString("\n\n---\n\n")
	}

	if succeeded > 1 {
		b.WriteString("## Overall Session Insights\n\n")
		fmt.Fprintf(&b, "This session covered %d questions with comprehensive student participation. "+
			"Each question received focused analysis to provide targeted feedback for improvement.\n\n", succeeded)
		b.WriteString("**Key Strengths Across Questions:**\n")
		b.WriteString("- Students engaged with multiple topics and question types\n")
		b.WriteString("- Opportunity to demonstrate different aspects of collaborative discussion\n")
		b.WriteString("- Rich data for individual and group development\n\n")
		b.WriteString("**Recommendations for Future Sessions:**\n")
		b.WriteString("- Review individual question feedback for targeted improvement\n")
		b.WriteString("- Consider how insights from one question can inform responses to others\n")
		b.WriteString("- Use question-specific feedback to develop stronger discussion strategies\n\n")
	}

	b.WriteString("---\n\n*Generated by panelscribe - Question-by-Question Analysis*")
	return b.String()
}

func sessionDuration(s *interview.Session, now time.Time) string {
	if s.StartTime.IsZero() {
		return "N/A"
	}
	return interview.FormatDuration(s.Duration(now))
}
