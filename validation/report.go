package validation

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/docmorph/errors"
)

// ValidationReport aggregates the results of one validation run.
// OverallPassed is the logical AND over every result.
type ValidationReport struct {
	CreatedAt     time.Time          `json:"created_at" yaml:"created_at"`
	Threshold     float64            `json:"threshold" yaml:"threshold"`
	Results       []ValidationResult `json:"results" yaml:"results"`
	OverallPassed bool               `json:"overall_passed" yaml:"overall_passed"`
}

// NewReport starts an empty, passing report.
func NewReport(threshold float64) *ValidationReport {
	return &ValidationReport{
		CreatedAt:     time.Now().UTC(),
		Threshold:     threshold,
		OverallPassed: true,
	}
}

// Add appends a result and updates the aggregate verdict.
func (r *ValidationReport) Add(result ValidationResult) {
	r.Results = append(r.Results, result)
	if !result.Passed {
		r.OverallPassed = false
	}
}

// Failed returns the failing results.
func (r *ValidationReport) Failed() []ValidationResult {
	return lo.Filter(r.Results, func(res ValidationResult, _ int) bool { return !res.Passed })
}

// JSON exports the archival form.
func (r *ValidationReport) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "marshal report")
	}
	return data, nil
}

// YAML exports the report for config-style tooling.
func (r *ValidationReport) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "marshal report")
	}
	return data, nil
}

// junit testsuite shapes, one testcase per result.
type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

// JUnitXML exports the report for CI gating. Comparison failures become
// <failure> entries; pipeline errors become <error> entries.
func (r *ValidationReport) JUnitXML() ([]byte, error) {
	suite := junitTestSuite{
		Name:      "docmorph-validation",
		Tests:     len(r.Results),
		Timestamp: r.CreatedAt.Format(time.RFC3339),
	}
	for _, res := range r.Results {
		tc := junitTestCase{
			Name:      res.ID,
			ClassName: "validation",
			Time:      fmt.Sprintf("%.3f", res.Duration.Seconds()),
		}
		switch {
		case res.Error != "":
			suite.Errors++
			tc.Error = &junitError{Message: res.Error, Type: string(res.ErrorCode)}
		case !res.Passed:
			suite.Failures++
			tc.Failure = &junitFailure{
				Message: fmt.Sprintf("similarity %.4f below threshold %.4f (%s)", res.Score, res.Threshold, res.Band),
				Body:    strings.Join(res.Diagnostics, "\n"),
			}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	data, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "marshal junit report")
	}
	return append([]byte(xml.Header), data...), nil
}

// HTML exports a human dashboard: one card per result with a score badge and
// the diff image embedded base64 when present.
func (r *ValidationReport) HTML() (string, error) {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Validation Report</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100 min-h-screen p-6">
    <div class="max-w-7xl mx-auto space-y-8">
`)

	verdict := `<span class="px-3 py-1 rounded-full bg-green-100 text-green-800 font-semibold">PASSED</span>`
	if !r.OverallPassed {
		verdict = `<span class="px-3 py-1 rounded-full bg-red-100 text-red-800 font-semibold">FAILED</span>`
	}
	fmt.Fprintf(&sb, `        <div class="bg-white rounded-lg shadow p-6">
            <h1 class="text-2xl font-bold mb-2">Validation Report %s</h1>
            <p class="text-gray-600">%d results, threshold %.4f, generated %s</p>
        </div>
`, verdict, len(r.Results), r.Threshold, r.CreatedAt.Format(time.RFC3339))

	for _, res := range r.Results {
		sb.WriteString(`        <div class="bg-white rounded-lg shadow p-6">` + "\n")
		fmt.Fprintf(&sb, `            <h2 class="text-lg font-semibold">%s %s</h2>`+"\n",
			html.EscapeString(res.ID), scoreBadge(res))
		fmt.Fprintf(&sb, `            <p class="text-sm text-gray-500">%s &rarr; %s</p>`+"\n",
			html.EscapeString(res.Original), html.EscapeString(res.Regenerated))

		if res.Error != "" {
			fmt.Fprintf(&sb, `            <p class="mt-2 text-red-700">%s: %s</p>`+"\n",
				res.ErrorCode, html.EscapeString(res.Error))
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&sb, `            <p class="mt-1 text-sm text-amber-700">%s</p>`+"\n", html.EscapeString(d))
		}
		if res.DiffImage != "" {
			if data, err := os.ReadFile(res.DiffImage); err == nil {
				fmt.Fprintf(&sb, `            <img class="mt-4 border rounded" alt="diff" src="data:image/png;base64,%s"/>`+"\n",
					base64.StdEncoding.EncodeToString(data))
			}
		}
		sb.WriteString("        </div>\n")
	}

	sb.WriteString("    </div>\n</body>\n</html>\n")
	return sb.String(), nil
}

func scoreBadge(res ValidationResult) string {
	switch {
	case res.Error != "":
		return `<span class="px-2 py-0.5 rounded bg-red-100 text-red-800 text-sm">error</span>`
	case res.Passed:
		return fmt.Sprintf(`<span class="px-2 py-0.5 rounded bg-green-100 text-green-800 text-sm">%.4f</span>`, res.Score)
	case res.Band == BandMinor:
		return fmt.Sprintf(`<span class="px-2 py-0.5 rounded bg-yellow-100 text-yellow-800 text-sm">%.4f minor</span>`, res.Score)
	case res.Band == BandModerate:
		return fmt.Sprintf(`<span class="px-2 py-0.5 rounded bg-orange-100 text-orange-800 text-sm">%.4f moderate</span>`, res.Score)
	default:
		return fmt.Sprintf(`<span class="px-2 py-0.5 rounded bg-red-100 text-red-800 text-sm">%.4f major</span>`, res.Score)
	}
}

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

// Console renders a terminal summary sized to the current terminal width.
func (r *ValidationReport) Console() string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w
	}

	var sb strings.Builder
	title := fmt.Sprintf("Validation: %d results, threshold %.4f", len(r.Results), r.Threshold)
	sb.WriteString(boldStyle.Render(title) + "\n")

	for _, res := range r.Results {
		var line string
		switch {
		case res.Error != "":
			line = failStyle.Render("ERR ") + res.ID + mutedStyle.Render("  "+res.Error)
		case res.Passed:
			line = passStyle.Render("PASS") + fmt.Sprintf(" %s  %.4f", res.ID, res.Score)
		default:
			line = failStyle.Render("FAIL") + fmt.Sprintf(" %s  %.4f (%s)", res.ID, res.Score, res.Band)
		}
		sb.WriteString(lipgloss.NewStyle().MaxWidth(width).Render(line) + "\n")
	}

	if r.OverallPassed {
		sb.WriteString(passStyle.Render("overall: PASSED") + "\n")
	} else {
		sb.WriteString(failStyle.Render(fmt.Sprintf("overall: FAILED (%d failing)", len(r.Failed()))) + "\n")
	}
	return sb.String()
}
