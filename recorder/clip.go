package recorder

import (
	"time"

	"github.com/google/uuid"

	"signcap/codec"
)

type Source int

const (
	SourceCamera Source = iota
	SourceFile
)

func (s Source) String() string {
	if s == SourceFile {
		return "file"
	}
	return "camera"
}

// Clip is a finalized recording. Data must not be modified.
type Clip struct {
	ID        uuid.UUID
	Data      []byte
	Format    codec.Format
	Source    Source
	Name      string
	Chunks    int
	Duration  time.Duration
	CreatedAt time.Time
}

func (c *Clip) Size() int { return len(c.Data) }

func (c *Clip) Empty() bool { return c == nil || len(c.Data) == 0 }

func (c *Clip) ContentType() string {
	if ct := c.Format.ContentType(); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// FileName is the name the clip is uploaded and served under.
func (c *Clip) FileName() string {
	if c.Name != "" {
		return c.Name
	}
	return "recorded-video" + c.Format.Extension()
}

// NewFileClip wraps an imported video file.
func NewFileClip(name string, data []byte, format codec.Format) *Clip {
	return &Clip{
		ID:        uuid.New(),
		Data:      data,
		Format:    format,
		Source:    SourceFile,
		Name:      name,
		Chunks:    1,
		CreatedAt: time.Now(),
	}
}
