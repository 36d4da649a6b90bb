package main

import (
	"net/http"
)

func dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Rate Sampler Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #0f172a;
            color: #e2e8f0;
            padding: 24px;
        }
        .container { max-width: 1100px; margin: 0 auto; }
        h1 { font-size: 2em; margin-bottom: 6px; }
        .subtitle { color: #94a3b8; margin-bottom: 24px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 16px;
            margin-bottom: 24px;
        }
        .card { background: #1e293b; border-radius: 10px; padding: 20px; }
        .label { color: #94a3b8; font-size: 0.8em; text-transform: uppercase; letter-spacing: 1px; }
        .value { font-size: 2.2em; font-weight: bold; margin-top: 8px; }
        .sampled { color: #34d399; }
        .rejected { color: #f87171; }
        .rate { color: #60a5fa; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #334155; }
        th { color: #94a3b8; font-size: 0.8em; text-transform: uppercase; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Rate Sampler</h1>
        <p class="subtitle">Sampling decisions, refreshed every 2s</p>

        <div class="grid">
            <div class="card">
                <div class="label">Decisions</div>
                <div class="value" id="total">0</div>
            </div>
            <div class="card">
                <div class="label">Sampled</div>
                <div class="value sampled" id="sampled">0</div>
            </div>
            <div class="card">
                <div class="label">Rejected</div>
                <div class="value rejected" id="rejected">0</div>
            </div>
            <div class="card">
                <div class="label">Max traces / s</div>
                <div class="value rate" id="rate">0</div>
            </div>
        </div>

        <div class="card">
            <div class="label">Top operations</div>
            <table>
                <thead>
                    <tr><th>Operation</th><th>Total</th><th>Sampled</th><th>Rejected</th><th>Last decision</th></tr>
                </thead>
                <tbody id="operations"></tbody>
            </table>
        </div>
    </div>

    <script>
        async function refresh() {
            try {
                const response = await fetch('/metrics');
                render(await response.json());
            } catch (error) {
                console.error('Failed to fetch metrics:', error);
            }
        }

        function render(data) {
            document.getElementById('total').textContent = data.total_decisions.toLocaleString();
            document.getElementById('sampled').textContent = data.sampled.toLocaleString();
            document.getElementById('rejected').textContent = data.rejected.toLocaleString();
            document.getElementById('rate').textContent = data.max_traces_per_second;

            const ops = data.top_operations || [];
            document.getElementById('operations').innerHTML = ops.map(op => ` + "`" + `
                <tr>
                    <td>${op.operation}</td>
                    <td>${op.total_decisions}</td>
                    <td class="sampled">${op.sampled}</td>
                    <td class="rejected">${op.rejected}</td>
                    <td>${new Date(op.last_decision_at).toLocaleTimeString()}</td>
                </tr>
            ` + "`" + `).join('');
        }

        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
