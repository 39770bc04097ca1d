package deploy

// LogWindowSize is the number of trailing lines carried in progress events.
const LogWindowSize = 10

// LogWindow keeps the most recent lines of an unbounded output stream.
type LogWindow struct {
	buf   []string
	start int
	n     int
}

// NewLogWindow returns a window holding at most size lines.
func NewLogWindow(size int) *LogWindow {
	if size < 1 {
		size = 1
	}
	return &LogWindow{buf: make([]string, size)}
}

// Push adds a line, dropping the oldest one when full.
func (w *LogWindow) Push(line string) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = line
		w.n++
		return
	}
	w.buf[w.start] = line
	w.start = (w.start + 1) % len(w.buf)
}

// Lines returns a copy of the window, oldest first.
func (w *LogWindow) Lines() []string {
	out := make([]string, w.n)
	for i := range w.n {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Len returns the number of lines held.
func (w *LogWindow) Len() int { return w.n }
