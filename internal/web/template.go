package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"celsius": func(v float64) string {
		return fmt.Sprintf("%.1f °C", v)
	},
	"percent": func(v float64) string {
		return fmt.Sprintf("%.1f %%", v)
	},
	"seconds": func(s int64) string {
		return (time.Duration(s) * time.Second).String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vent Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Vent Controller{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Fan</h2>
<table>
<tr><th>State</th><td id="fan-state" class="{{if eq .Fan "ON"}}on{{else}}off{{end}}">{{.Fan}}</td></tr>
{{if eq .Fan "ON"}}<tr><th>Running for</th><td>{{duration .FanRuntime}}</td></tr>{{end}}
{{if .LastReason}}<tr><th>Last change</th><td>{{.LastReason}}</td></tr>{{end}}
<tr><th>Relay</th><td class="{{if .RelaySynced}}connected{{else}}disconnected{{end}}">{{if .RelaySynced}}in sync{{else}}retrying{{end}}</td></tr>
</table>

<h2>Reading</h2>
<table>
{{with .Last}}
<tr><th>Temperature</th><td id="temperature">{{if .HasSample}}{{celsius .TemperatureC}}{{else}}-{{end}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{if .HasSample}}{{percent .HumidityPct}}{{else}}-{{end}}</td></tr>
<tr><th>Dew point</th><td id="dew-point">{{if .Valid}}{{celsius .DewPointC}}{{else}}-{{end}}</td></tr>
{{if .Failure}}<tr><th>Failure</th><td id="failure" class="warn">{{.Failure}}</td></tr>{{end}}
<tr><th>At</th><td>{{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}
<tr><th>Sensor</th><td class="warn">no reading yet</td></tr>
{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>ON</th><td>{{.Counts.On}}</td></tr>
<tr><th>OFF (dew point)</th><td>{{.Counts.OffDewPoint}}</td></tr>
<tr><th>OFF (max runtime)</th><td>{{.Counts.OffMaxRuntime}}</td></tr>
<tr><th>OFF (sensor failsafe)</th><td>{{.Counts.OffFailsafe}}</td></tr>
<tr><th>Failed readings</th><td>{{.Counts.FailedReadings}}</td></tr>
<tr><th>Relay errors</th><td>{{.ActuatorErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if .Config.RunID}}<tr><th>Run</th><td>{{.Config.RunID}}</td></tr>{{end}}
<tr><th>Threshold</th><td>{{celsius .Config.ThresholdC}} (off below {{celsius .OffThreshold}})</td></tr>
<tr><th>Runtime</th><td>{{seconds .Config.MinRuntimeS}} min, {{seconds .Config.MaxRuntimeS}} max</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Relay pin</th><td>BCM {{.Config.RelayPin}}{{if .Config.RelayPhysPin}} (pin {{.Config.RelayPhysPin}}){{end}}{{if .Config.ActiveLow}}, active low{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Topic}}";
  var dot = document.getElementById("live-dot");
  var fanEl = document.getElementById("fan-state");

  function setText(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var r = JSON.parse(payload.toString()).reading;
      if (!r) { return; }
      fanEl.textContent = r.fan;
      fanEl.className = r.fan === "ON" ? "on" : "off";
      if (r.temperature_c !== undefined) { setText("temperature", r.temperature_c.toFixed(1) + " °C"); }
      if (r.humidity_pct !== undefined) { setText("humidity", r.humidity_pct.toFixed(1) + " %"); }
      setText("dew-point", r.dew_point_c !== undefined ? r.dew_point_c.toFixed(1) + " °C" : "-");
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot methods are exposed as fields for the template.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		FanRuntime   time.Duration
		OffThreshold float64
		Topic        string
	}{
		Snapshot:     snap,
		Uptime:       snap.Uptime(),
		FanRuntime:   snap.FanRuntime(),
		OffThreshold: snap.Config.ThresholdC - snap.Config.HysteresisC,
		Topic:        mqtt.Topic,
	}
	indexTmpl.Execute(w, data)
}
