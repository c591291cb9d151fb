package session

import (
	"fmt"
	"io"
	"sync"
)

// clearSequence moves the cursor home and clears the screen
const clearSequence = "\033[H\033[J"

// Display shows the running transcript of the current utterance
type Display struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
}

// NewDisplay writes to w. With clear set every update replaces the screen;
// otherwise each update is printed as a new line.
func NewDisplay(w io.Writer, clear bool) *Display {
	return &Display{w: w, clear: clear}
}

// Show prints text
func (d *Display) Show(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.clear {
		if _, err := io.WriteString(d.w, clearSequence); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(d.w, text)
	return err
}
