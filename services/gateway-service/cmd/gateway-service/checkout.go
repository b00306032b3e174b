package main

import (
	"html/template"
	"net/http"
)

// The checkout return page is a placeholder until a real frontend
// exists. It acknowledges the checkout state token and polls the
// session status through the public billing endpoints.
var checkoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Arial,sans-serif;margin:40px;max-width:880px;line-height:1.4}
code{background:#f4f4f4;padding:2px 4px;border-radius:4px}
pre{background:#0b1020;color:#e6edf3;padding:12px;border-radius:8px;overflow:auto}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if not .SessionID}}
<p>Missing <code>session_id</code> query parameter.</p>
{{else}}
<p>Session: <code>{{.SessionID}}</code></p>
<p>Status: <span id="status">checking...</span></p>
<pre id="raw"></pre>
<script>
const sessionId = {{.SessionID}};
const state = {{.State}};
const mode = {{.Mode}};
async function ack() {
  if (!state) return;
  try {
    await fetch('/api/v1/billing/checkout/session/ack', {
      method: 'POST',
      headers: {'Content-Type':'application/json'},
      body: JSON.stringify({session_id: sessionId, state: state, result: mode}),
    });
  } catch (e) {}
}
async function poll() {
  try {
    const resp = await fetch('/api/v1/billing/checkout/session?session_id=' + encodeURIComponent(sessionId), {cache:'no-store'});
    const txt = await resp.text();
    let obj = null;
    try { obj = JSON.parse(txt); } catch (e) {}
    document.getElementById('raw').textContent = txt;
    if (!resp.ok) {
      document.getElementById('status').textContent = 'error (' + resp.status + ')';
      return;
    }
    const s = obj && obj.status ? obj.status : 'unknown';
    document.getElementById('status').textContent = s;
    if (mode === 'success' && s !== 'completed') setTimeout(poll, 1500);
  } catch (e) {
    document.getElementById('status').textContent = 'error';
  }
}
ack();
poll();
</script>
{{end}}
</body>
</html>
`))

func renderCheckoutReturnPage(w http.ResponseWriter, r *http.Request, title string, mode string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = checkoutPage.Execute(w, struct {
		Title     string
		Mode      string
		SessionID string
		State     string
	}{
		Title:     title,
		Mode:      mode,
		SessionID: r.URL.Query().Get("session_id"),
		State:     r.URL.Query().Get("state"),
	})
}
