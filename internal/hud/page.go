package hud

import "net/http"

const viewerHTML = `<!DOCTYPE html>
<html>
<head><title>falldetect HUD</title></head>
<body style="margin:0;background:#111">
<img id="frame" style="width:100%;height:auto;display:block;margin:auto" />
<script>
const img = document.getElementById("frame");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "arraybuffer";
ws.onmessage = (ev) => {
  const blob = new Blob([ev.data], {type: "image/jpeg"});
  const url = URL.createObjectURL(blob);
  const prev = img.src;
  img.src = url;
  if (prev) URL.revokeObjectURL(prev);
};
</script>
</body>
</html>`

// ServeViewer writes the HUD's single-page viewer.
func ServeViewer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(viewerHTML))
}
