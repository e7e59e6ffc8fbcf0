package server

// indexHTML is the control page served at /
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>antirec</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
    <style>
        canvas { width: 100%; height: 120px; background: #111; border-radius: 6px; }
        .meters { display: grid; grid-template-columns: 1fr 1fr; gap: 1rem; }
    </style>
</head>
<body>
    <main class="container">
        <h1>antirec</h1>
        <p id="status">Loading...</p>
        <form id="start-form">
            <label>Perturbation values (comma separated, empty for the active profile)
                <input id="values" name="values" placeholder="0.1, -0.1">
            </label>
            <div class="grid">
                <button type="submit" id="start">Start</button>
                <button type="button" id="stop" class="secondary">Stop</button>
            </div>
        </form>
        <div class="meters">
            <article><header>Original</header><canvas id="ori"></canvas></article>
            <article><header>Perturbed</header><canvas id="new"></canvas></article>
        </div>
        <h2>Recordings</h2>
        <table>
            <thead><tr><th>Started</th><th>Original</th><th>Perturbed</th></tr></thead>
            <tbody id="recordings"></tbody>
        </table>
    </main>
    <script>
        async function post(path, body) {
            const res = await fetch(path, {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: body ? JSON.stringify(body) : ''
            });
            const data = await res.json();
            if (!data.success) alert(data.error);
            refresh();
        }

        document.getElementById('start-form').addEventListener('submit', (e) => {
            e.preventDefault();
            const raw = document.getElementById('values').value.trim();
            post('/start', raw ? {values: raw.split(',').map(Number)} : null);
        });
        document.getElementById('stop').addEventListener('click', () => post('/stop'));

        function track(f) {
            if (!f) return '-';
            return '<audio controls preload="none" src="' + f.stream_url + '"></audio> ' + f.size_human;
        }

        async function refresh() {
            const status = await (await fetch('/status')).json();
            document.getElementById('status').textContent =
                status.status + (status.message ? ' - ' + status.message : '');

            const list = await (await fetch('/api/recordings')).json();
            document.getElementById('recordings').innerHTML = list.recordings.map(r =>
                '<tr><td>' + r.start_time_human + '</td><td>' + track(r.original) +
                '</td><td>' + track(r.perturbed) + '</td></tr>').join('');
        }

        function draw(id, samples) {
            const canvas = document.getElementById(id);
            const ctx = canvas.getContext('2d');
            canvas.width = canvas.clientWidth;
            canvas.height = canvas.clientHeight;
            ctx.clearRect(0, 0, canvas.width, canvas.height);
            ctx.strokeStyle = id === 'ori' ? '#4caf50' : '#ff9800';
            ctx.beginPath();
            const mid = canvas.height / 2;
            samples.forEach((v, i) => {
                const x = i * canvas.width / samples.length;
                const y = mid - Math.max(-1, Math.min(1, v)) * mid;
                i === 0 ? ctx.moveTo(x, y) : ctx.lineTo(x, y);
            });
            ctx.stroke();
        }

        function connect() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/events');
            ws.onmessage = (msg) => {
                const m = JSON.parse(msg.data);
                if (m.type !== 'audio_update') return;
                draw('ori', m.payload.ori);
                draw('new', m.payload.new);
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }

        refresh();
        setInterval(refresh, 2000);
        connect();
    </script>
</body>
</html>`
