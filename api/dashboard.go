package api

// dashboardHTML is the embedded status page. It polls /api/status every
// five seconds and renders counters, the defect queue and the activity
// log without any build step or external assets.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Self-Healing Database</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; background: #0f1419; color: #e6e6e6; margin: 0; padding: 2rem; }
  h1 { font-size: 1.4rem; margin: 0 0 1.5rem; }
  .cards { display: flex; flex-wrap: wrap; gap: 1rem; margin-bottom: 1.5rem; }
  .card { background: #1a2029; border-radius: 8px; padding: 1rem 1.5rem; min-width: 140px; }
  .card .num { font-size: 1.8rem; font-weight: 600; }
  .card .label { font-size: 0.8rem; color: #8b949e; text-transform: uppercase; }
  .ok { color: #3fb950; } .warn { color: #d29922; } .err { color: #f85149; }
  h2 { font-size: 1rem; color: #8b949e; margin: 1.5rem 0 0.5rem; }
  table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
  th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #232b36; }
  #log { font-family: ui-monospace, monospace; font-size: 0.8rem; background: #1a2029; border-radius: 8px; padding: 1rem; max-height: 300px; overflow-y: auto; }
  #log div { padding: 0.1rem 0; }
</style>
</head>
<body>
<h1>Self-Healing Database</h1>
<div class="cards">
  <div class="card"><div class="num" id="conn">...</div><div class="label">Database</div></div>
  <div class="card"><div class="num" id="detected">0</div><div class="label">Detected</div></div>
  <div class="card"><div class="num" id="fixed">0</div><div class="label">Fixed</div></div>
  <div class="card"><div class="num" id="failed">0</div><div class="label">Failed</div></div>
  <div class="card"><div class="num" id="queue">0</div><div class="label">Queued</div></div>
  <div class="card"><div class="num" id="cycles">0</div><div class="label">Cycles</div></div>
  <div class="card"><div class="num" id="fixer">idle</div><div class="label">Fixer</div></div>
</div>
<h2>Recently detected</h2>
<table><thead><tr><th>Kind</th><th>Severity</th><th>Collection</th><th>Description</th><th>Status</th></tr></thead><tbody id="recent"></tbody></table>
<h2>Activity</h2>
<div id="log"></div>
<script>
function esc(s) { const d = document.createElement('div'); d.textContent = s == null ? '' : s; return d.innerHTML; }
async function refresh() {
  try {
    const r = await fetch('/api/status');
    const s = await r.json();
    const conn = document.getElementById('conn');
    conn.textContent = s.connection_healthy ? 'up' : 'down';
    conn.className = 'num ' + (s.connection_healthy ? 'ok' : 'err');
    document.getElementById('detected').textContent = s.total_detected;
    document.getElementById('fixed').textContent = s.total_fixed;
    document.getElementById('failed').textContent = s.total_failed;
    document.getElementById('queue').textContent = s.queue_depth;
    document.getElementById('cycles').textContent = s.detection_cycles;
    document.getElementById('fixer').textContent = s.fixer_status;
    document.getElementById('recent').innerHTML = (s.recent_detected || []).map(d =>
      '<tr><td>' + esc(d.kind) + '</td><td>' + esc(d.severity) + '</td><td>' + esc(d.collection) +
      '</td><td>' + esc(d.description) + '</td><td>' + esc(d.status) + '</td></tr>').join('');
    document.getElementById('log').innerHTML = (s.activity_log || []).map(e => {
      const cls = e.level === 'error' ? 'err' : e.level === 'warning' ? 'warn' : 'ok';
      return '<div><span class="' + cls + '">[' + esc(e.level) + ']</span> ' +
        esc(new Date(e.timestamp).toLocaleTimeString()) + ' ' + esc(e.message) + '</div>';
    }).join('');
  } catch (err) {
    const conn = document.getElementById('conn');
    conn.textContent = 'n/a';
    conn.className = 'num err';
  }
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>`
