package dashboard

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"flowboard/internal/format"
)

var reportFuncs = template.FuncMap{
	"duration": format.Duration,
	"percent":  format.Percent,
	"stamp": func(s *Snapshot) string {
		return s.FetchedAt.Format("2006-01-02 15:04:05 MST")
	},
	"barWidth": func(count, busiest int) string {
		if busiest <= 0 {
			return "0%"
		}
		return fmt.Sprintf("%.1f%%", float64(count)/float64(busiest)*100)
	},
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Snap.TenantName}} - {{.Snap.RangeLabel}} - Execution Report</title>
    <style>
        :root {
            --primary-color: #2563eb;
            --success-color: #22c55e;
            --error-color: #ef4444;
            --bg-color: #f8fafc;
            --card-bg: white;
            --text-primary: #1f2937;
            --text-secondary: #6b7280;
            --border-color: #e5e7eb;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background-color: var(--bg-color);
            color: var(--text-primary);
            line-height: 1.6;
        }
        .header {
            background: linear-gradient(135deg, var(--primary-color), #1d4ed8);
            color: white;
            padding: 2rem 0;
        }
        .container { max-width: 1100px; margin: 0 auto; padding: 0 1rem; }
        .kpis { display: grid; grid-template-columns: repeat(4, 1fr); gap: 1rem; margin: 2rem 0; }
        .card {
            background: var(--card-bg);
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 1rem 1.25rem;
        }
        .card h3 { font-size: 0.8rem; color: var(--text-secondary); text-transform: uppercase; }
        .card .value { font-size: 1.8rem; font-weight: 600; }
        section { margin-bottom: 2rem; }
        table { width: 100%; border-collapse: collapse; background: var(--card-bg); }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid var(--border-color); }
        .bar { background: var(--primary-color); height: 0.6rem; border-radius: 3px; }
        .dot { display: inline-block; width: 0.6rem; height: 0.6rem; border-radius: 50%; margin-right: 0.4rem; }
    </style>
</head>
<body>
    <div class="header">
        <div class="container">
            <h1>{{.Snap.TenantName}}</h1>
            <p>{{.Snap.RangeLabel}} &middot; {{.Snap.RecordCount}} executions &middot; generated {{stamp .Snap}}</p>
        </div>
    </div>
    <div class="container">
        <div class="kpis">
            <div class="card"><h3>Total Executions</h3><div class="value">{{.Snap.Metrics.TotalExecutions}}</div></div>
            <div class="card"><h3>Success Rate</h3><div class="value">{{percent .Snap.Metrics.SuccessRate}}</div></div>
            <div class="card"><h3>Errors</h3><div class="value">{{.Snap.Metrics.ErrorCount}}</div></div>
            <div class="card"><h3>Avg Duration</h3><div class="value">{{duration .Snap.Metrics.AvgDurationSeconds}}</div></div>
        </div>

        <section>
            <h2>Status Breakdown</h2>
            <table>
                <tr><th>Status</th><th>Count</th></tr>
                {{range .Snap.Status}}<tr><td><span class="dot" style="background: {{.Color}}"></span>{{.Name}}</td><td>{{.Value}}</td></tr>
                {{end}}
            </table>
        </section>

        <section>
            <h2>Workflow Distribution</h2>
            {{$max := .MaxCount}}
            <table>
                <tr><th>Workflow</th><th>Executions</th><th>Errors</th><th></th></tr>
                {{range .Snap.Distribution}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{.Errors}}</td><td style="width: 40%"><div class="bar" style="width: {{barWidth .Count $max}}"></div></td></tr>
                {{end}}
            </table>
        </section>

        <section>
            <h2>Execution Volume</h2>
            <table>
                <tr><th>Bucket</th><th>Started</th><th>Complete</th><th>Error</th><th>Other</th></tr>
                {{range .Snap.Volume}}<tr><td>{{.Time}}</td><td>{{.Start}}</td><td>{{.Complete}}</td><td>{{.Error}}</td><td>{{.Other}}</td></tr>
                {{end}}
            </table>
        </section>

        <section>
            <h2>Recent Errors</h2>
            {{if .Snap.RecentErrors}}
            <table>
                <tr><th>Instance</th><th>Workflow</th><th>Duration</th><th>When</th></tr>
                {{range .Snap.RecentErrors}}<tr><td title="{{.InstanceID}}">{{.ShortID}}</td><td>{{.Workflow}}</td><td>{{.Duration}}</td><td>{{.Age}}</td></tr>
                {{end}}
            </table>
            {{else}}
            <p>No errors in this period.</p>
            {{end}}
        </section>
    </div>
</body>
</html>`

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

// WriteHTMLReport renders a standalone HTML report of snap to w.
func WriteHTMLReport(w io.Writer, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("no snapshot to report")
	}
	busiest := 0
	for _, d := range snap.Distribution {
		if d.Count > busiest {
			busiest = d.Count
		}
	}
	data := struct {
		Snap     *Snapshot
		MaxCount int
	}{Snap: snap, MaxCount: busiest}

	if err := reportTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// GenerateHTMLReport returns the report of snap as a string.
func GenerateHTMLReport(snap *Snapshot) (string, error) {
	var buf strings.Builder
	if err := WriteHTMLReport(&buf, snap); err != nil {
		return "", err
	}
	return buf.String(), nil
}
