package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/step-sensor/internal/status"
)

// formatUptime renders d as "1d 2h 3m 4s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days, rem := total/86400, total%86400
	hours, rem := rem/3600, rem%3600
	mins, secs := rem/60, rem%60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

var pageFuncs = template.FuncMap{
	"uptime": formatUptime,
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("15:04:05")
	},
	"bar": func(pct float64) int {
		return int(math.Min(100, math.Round(pct)))
	},
}

var pageTmpl = template.Must(template.New("page").Funcs(pageFuncs).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Step Sensor</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1.05em; margin: 1.2em 0 0.3em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; border-bottom: 1px solid #e4e4e4; }
th { width: 45%; font-weight: normal; color: #555; }
.yes { color: #1a7f37; font-weight: bold; }
.no { color: #999; }
.goal { background: #eee; height: 10px; border-radius: 5px; overflow: hidden; }
.goal div { background: #1a7f37; height: 100%; }
.controls form { display: inline; }
.controls button { font-family: monospace; margin: 0.2em 0.2em 0 0; }
#feed { font-size: 0.8em; margin-left: 0.5em; color: #d08700; }
#feed.live { color: #1a7f37; }
#feed.down { color: #c62828; }
</style>
</head>
<body>
<h1>Step Sensor <span id="feed">connecting</span></h1>

<h2>Session</h2>
<table>
<tr><th>Tracking</th><td class="{{if .Tracking}}yes{{else}}no{{end}}">{{if .Tracking}}yes{{else}}no{{end}}{{if .Calibrating}} (calibration walk){{end}}</td></tr>
<tr><th>Counting from</th><td id="source">{{.Source}}</td></tr>
<tr><th>Steps</th><td id="steps">{{.Counts.Steps}}</td></tr>
<tr><th>Floors</th><td id="floors">{{.Counts.Floors}}</td></tr>
<tr><th>Last step</th><td id="last-step">{{clock .LastStep}}</td></tr>
<tr><th>Last floor</th><td id="last-floor">{{clock .LastFloor}}</td></tr>
<tr><th>Goal {{.StepGoal}}</th><td>{{printf "%.1f" .GoalPercent}}%<div class="goal"><div style="width: {{bar .GoalPercent}}%"></div></div></td></tr>
</table>
<div class="controls">
<form method="post" action="/api/start"><button>start</button></form>
<form method="post" action="/api/stop"><button>stop</button></form>
<form method="post" action="/api/reset/steps"><button>reset steps</button></form>
<form method="post" action="/api/reset/floors"><button>reset floors</button></form>
<form method="post" action="/api/calibration/start"><button>calibration walk</button></form>
</div>

<h2>Detection</h2>
<table>
<tr><th>Sensitivity</th><td>{{.Calibration.Sensitivity}}</td></tr>
<tr><th>Calibration factor</th><td>{{printf "%.3f" .Calibration.Factor}}</td></tr>
<tr><th>Step threshold</th><td>{{.Calibration.Config.StepThreshold}} g, {{.Calibration.Config.MinStepInterval}} apart</td></tr>
<tr><th>Floor threshold</th><td>{{.Calibration.Config.FloorThreshold}} g{{if not .FloorTracking}} (floor tracking off){{end}}</td></tr>
</table>

<h2>Daemon</h2>
<table>
<tr><th>MQTT {{.Config.Broker}}</th><td class="{{if .MQTTConnected}}yes{{else}}no{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Sample source</th><td>{{.Config.Source}} every {{.Config.SampleMs}}ms{{if .Config.PreferPedometer}}, pedometer preferred{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.HeartbeatMs}}{{.Config.HeartbeatMs}}ms{{else}}off{{end}}</td></tr>
<tr><th>Up</th><td>{{uptime .Uptime}} since {{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>
</table>

<p><a href="/index.json">index.json</a></p>
<script>
(function() {
  var feed = document.getElementById("feed");
  function text(id, v) { document.getElementById(id).textContent = v; }
  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(scheme + location.host + "/ws");
    ws.onopen = function() { feed.className = "live"; feed.textContent = "live"; };
    ws.onclose = function() {
      feed.className = "down"; feed.textContent = "offline";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      var msg;
      try { msg = JSON.parse(ev.data); } catch (e) { return; }
      text("steps", msg.steps);
      text("floors", msg.floors);
      text("source", msg.source);
      var at = msg.timestamp.substr(11, 8);
      if (msg.type === "STEP") text("last-step", at);
      if (msg.type === "FLOOR") text("last-floor", at);
    };
  }
  connect();
})();
</script>
</body>
</html>
`

// pageData adds the derived values the template cannot call methods for.
type pageData struct {
	status.Snapshot
	Uptime      time.Duration
	GoalPercent float64
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return pageTmpl.Execute(w, pageData{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		GoalPercent: snap.GoalPercent(),
	})
}
