package clipboard

import (
	"errors"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
)

// CopiedFor is how long Copied reports true after a copy.
const CopiedFor = 2 * time.Second

var ErrEmpty = errors.New("nothing to copy")

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Copier copies text and remembers when, so the UI can show "copied" for
// a moment.
type Copier struct {
	write func(string) error
	now   func() time.Time

	mu    sync.Mutex
	until time.Time
}

func NewCopier() *Copier {
	return NewCopierWith(Copy)
}

// NewCopierWith copies through write instead of the system clipboard.
func NewCopierWith(write func(string) error) *Copier {
	return &Copier{write: write, now: time.Now}
}

func (c *Copier) Copy(text string) error {
	if text == "" {
		return ErrEmpty
	}
	if err := c.write(text); err != nil {
		return err
	}
	c.mu.Lock()
	c.until = c.now().Add(CopiedFor)
	c.mu.Unlock()
	return nil
}

func (c *Copier) Copied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.until)
}

// Clear drops the indicator, e.g. when the text it refers to goes away.
func (c *Copier) Clear() {
	c.mu.Lock()
	c.until = time.Time{}
	c.mu.Unlock()
}
