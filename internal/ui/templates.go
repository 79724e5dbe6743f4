package ui

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/me/kthreads/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"prefix": func() string { return Prefix },
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return humanize.Time(t)
	},
	"elapsed": func(start time.Time, end *time.Time) string {
		if end == nil {
			return "-"
		}
		return end.Sub(start).Round(time.Microsecond).String()
	},
	"comma": func(n any) string {
		switch v := n.(type) {
		case int:
			return humanize.Comma(int64(v))
		case int64:
			return humanize.Comma(v)
		case uint64:
			return humanize.Comma(int64(v))
		}
		return fmt.Sprint(n)
	},
	"stateColor": func(state model.SessionState) string {
		switch state {
		case model.SessionRunning:
			return "blue"
		case model.SessionCompleted:
			return "green"
		case model.SessionFailed:
			return "red"
		}
		return "gray"
	},
	"statusColor": func(status model.ThreadStatus) string {
		switch status {
		case model.ThreadRunning:
			return "blue"
		case model.ThreadReady:
			return "green"
		case model.ThreadBlocked:
			return "yellow"
		}
		return "gray"
	},
	// eventsLink builds the session page URL for an event filter.
	"eventsLink": func(id, kind string, thread int32, offset int) string {
		q := url.Values{}
		if kind != "" {
			q.Set("kind", kind)
		}
		if thread != 0 {
			q.Set("thread", strconv.Itoa(int(thread)))
		}
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
		u := Prefix + "/sessions/" + url.PathEscape(id)
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		return u
	},
}

// renderTemplate renders a page inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			if _, err := tmpl.New(strings.TrimPrefix(compName, "components/")).Parse(compContent); err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}

	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-7xl mx-auto px-4 sm:px-6 lg:px-8">
            <div class="flex h-16">
                <a href="{{prefix}}/" class="flex items-center px-2 py-2 text-xl font-bold text-indigo-600">kthreads</a>
                <a href="{{prefix}}/" class="ml-6 inline-flex items-center px-1 pt-1 text-sm font-medium text-gray-500 hover:text-gray-700">Sessions</a>
            </div>
        </div>
    </nav>
    <main class="max-w-7xl mx-auto py-6 sm:px-6 lg:px-8">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/state_badge": `<span class="inline-flex items-center px-2.5 py-0.5 rounded-full text-xs font-medium bg-{{stateColor .}}-100 text-{{stateColor .}}-800">{{.}}</span>`,

	"error": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <h1 class="text-2xl font-semibold text-gray-900">{{.Message}}</h1>
    <p class="mt-4"><a href="{{prefix}}/" class="text-indigo-600 hover:text-indigo-900">Back to sessions</a></p>
</div>
{{end}}`,

	"sessions/list": `{{define "content"}}
<div class="px-4 py-6 sm:px-0">
    <div class="flex justify-between items-center mb-6">
        <h1 class="text-2xl font-semibold text-gray-900">Sessions <span class="text-gray-400 text-base">{{.Total}}</span></h1>
        <div class="space-x-2 text-sm">
            <a href="{{prefix}}/" class="{{if not .State}}font-semibold{{end}} text-gray-700">All</a>
            {{range .States}}
            <a href="{{prefix}}/?state={{.}}" class="{{if eq (print .) $.State}}font-semibold{{end}} text-gray-700">{{.}}</a>
            {{end}}
        </div>
    </div>
    <div class="bg-white shadow overflow-hidden sm:rounded-lg">
        <table class="min-w-full divide-y divide-gray-200">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Session</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Scenario</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">State</th>
                    <th class="px-6 py-3 text-right text-xs font-medium text-gray-500 uppercase">Ticks</th>
                    <th class="px-6 py-3 text-left text-xs font-medium text-gray-500 uppercase">Started</th>
                </tr>
            </thead>
            <tbody class="divide-y divide-gray-200">
                {{range .Sessions}}
                <tr class="hover:bg-gray-50">
                    <td class="px-6 py-4 text-sm font-mono"><a href="{{prefix}}/sessions/{{.ID}}" class="text-indigo-600 hover:text-indigo-900">{{.ID}}</a></td>
                    <td class="px-6 py-4 text-sm text-gray-900">{{.Scenario}}</td>
                    <td class="px-6 py-4 text-sm">{{template "state_badge" .State}}</td>
                    <td class="px-6 py-4 text-sm text-right text-gray-900">{{comma .Ticks}}</td>
                    <td class="px-6 py-4 text-sm text-gray-500" title="{{formatTime .StartedAt}}">{{ago .StartedAt}}</td>
                </tr>
                {{else}}
                <tr><td colspan="5" class="px-6 py-8 text-center text-gray-500">No sessions recorded yet. Run <code>kthreads run</code> to record one.</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>
    <p class="mt-4 text-xs text-gray-400">Up {{.Uptime}}</p>
</div>
{{end}}`,

	"sessions/detail": `{{define "content"}}
{{$id := .Session.ID}}
<div class="px-4 py-6 sm:px-0 space-y-6">
    <div>
        <h1 class="text-2xl font-semibold text-gray-900">{{.Session.Scenario}} {{template "state_badge" .Session.State}}</h1>
        <p class="mt-1 text-sm text-gray-500 font-mono">{{$id}}</p>
        <p class="mt-1 text-sm text-gray-500">Started {{formatTime .Session.StartedAt}}, ran {{elapsed .Session.StartedAt .Session.FinishedAt}}</p>
    </div>

    {{if or .Session.Error .Session.Failures}}
    <div class="bg-red-50 border border-red-200 rounded-lg p-4 text-sm text-red-800">
        {{if .Session.Error}}<p class="font-mono">{{.Session.Error}}</p>{{end}}
        <ul class="list-disc ml-5">{{range .Session.Failures}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{end}}

    <div class="bg-white shadow sm:rounded-lg p-4 grid grid-cols-4 gap-4 text-sm">
        {{with .Session.Stats}}
        <div><p class="text-gray-500">Ticks</p><p class="text-lg">{{comma .Ticks}}</p></div>
        <div><p class="text-gray-500">Idle / kernel ticks</p><p class="text-lg">{{comma .IdleTicks}} / {{comma .KernelTicks}}</p></div>
        <div><p class="text-gray-500">Context switches</p><p class="text-lg">{{comma .ContextSwitches}}</p></div>
        <div><p class="text-gray-500">Slice expiries / preemptions</p><p class="text-lg">{{comma .SliceExpiries}} / {{comma .Preemptions}}</p></div>
        {{end}}
    </div>

    <div class="bg-white shadow overflow-hidden sm:rounded-lg">
        <h2 class="px-6 py-3 text-lg font-medium text-gray-900">Threads</h2>
        <table class="min-w-full divide-y divide-gray-200 text-sm">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">TID</th>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">Name</th>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">Status</th>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Base</th>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Effective</th>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Run ticks</th>
                </tr>
            </thead>
            <tbody class="divide-y divide-gray-200">
                {{range .Threads}}
                <tr>
                    <td class="px-6 py-2 font-mono">{{.ID}}</td>
                    <td class="px-6 py-2"><a href="{{eventsLink $id "" .ID 0}}" class="text-indigo-600 hover:text-indigo-900">{{.Name}}</a>{{if .Idle}} <span class="text-gray-400">(idle)</span>{{end}}</td>
                    <td class="px-6 py-2 text-{{statusColor .Status}}-700">{{.Status}}</td>
                    <td class="px-6 py-2 text-right">{{.BasePriority}}</td>
                    <td class="px-6 py-2 text-right">{{.EffectivePriority}}</td>
                    <td class="px-6 py-2 text-right">{{comma .RunTicks}}</td>
                </tr>
                {{else}}
                <tr><td colspan="6" class="px-6 py-4 text-center text-gray-500">No thread table recorded.</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>

    <div class="bg-white shadow overflow-hidden sm:rounded-lg">
        <div class="px-6 py-3 flex justify-between items-center">
            <h2 class="text-lg font-medium text-gray-900">Events <span class="text-gray-400 text-base">{{.EventTotal}}</span></h2>
            <div class="space-x-2 text-xs">
                <a href="{{eventsLink $id "" $.Thread 0}}" class="{{if not $.Kind}}font-semibold{{end}} text-gray-700">all</a>
                {{range .Kinds}}
                <a href="{{eventsLink $id (print .) $.Thread 0}}" class="{{if eq (print .) $.Kind}}font-semibold{{end}} text-gray-700">{{.}}</a>
                {{end}}
            </div>
        </div>
        <table class="min-w-full divide-y divide-gray-200 text-sm font-mono">
            <thead class="bg-gray-50">
                <tr>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Seq</th>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Tick</th>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">Kind</th>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">Thread</th>
                    <th class="px-6 py-2 text-right text-xs text-gray-500 uppercase">Pri</th>
                    <th class="px-6 py-2 text-left text-xs text-gray-500 uppercase">Detail</th>
                </tr>
            </thead>
            <tbody class="divide-y divide-gray-100">
                {{range .Events}}
                <tr>
                    <td class="px-6 py-1 text-right">{{.Seq}}</td>
                    <td class="px-6 py-1 text-right">{{.Tick}}</td>
                    <td class="px-6 py-1">{{.Kind}}</td>
                    <td class="px-6 py-1">{{.Thread}}({{.ThreadID}})</td>
                    <td class="px-6 py-1 text-right">{{.Priority}}</td>
                    <td class="px-6 py-1 text-gray-500">{{.Detail}}</td>
                </tr>
                {{else}}
                <tr><td colspan="6" class="px-6 py-4 text-center text-gray-500">No events match.</td></tr>
                {{end}}
            </tbody>
        </table>
        <div class="px-6 py-3 flex justify-between text-sm">
            {{if .HasPrevious}}<a href="{{eventsLink $id .Kind .Thread .PrevOffset}}" class="text-indigo-600">Previous</a>{{else}}<span></span>{{end}}
            {{if .HasMore}}<a href="{{eventsLink $id .Kind .Thread .NextOffset}}" class="text-indigo-600">Next</a>{{end}}
        </div>
    </div>
</div>
{{end}}`,
}
