package scout

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultCaptureInterval is the time between two frame uploads.
	DefaultCaptureInterval = 3 * time.Second

	// DefaultJPEGQuality is the JPEG quality of uploaded frames.
	DefaultJPEGQuality = 85
)

// ErrNoFrames is returned by a frame source that has nothing to offer.
var ErrNoFrames = errors.New("no frames available")

// FrameSource supplies camera frames.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// Locator reports the current position of the device.
type Locator interface {
	Locate(ctx context.Context) (LatLon, error)
}

// Uploader sends a geotagged frame to the classification backend.
type Uploader interface {
	Capture(ctx context.Context, req CaptureRequest) error
}

// StaticLocator always reports the same position.
type StaticLocator struct {
	Position LatLon
}

func (l StaticLocator) Locate(context.Context) (LatLon, error) {
	return l.Position, nil
}

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DirFrameSource cycles through the image files of a directory in name order.
type DirFrameSource struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewDirFrameSource lists the image files in dir
func NewDirFrameSource(dir string) (*DirFrameSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFrames)
	}
	sort.Strings(files)

	return &DirFrameSource{files: files}, nil
}

// NextFrame decodes the next file, wrapping around at the end
func (s *DirFrameSource) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", path, err)
	}
	return img, nil
}

// EncodeFrame scales img down to maxWidth (0 keeps the size) and returns it
// as a JPEG data URL.
func EncodeFrame(img image.Image, maxWidth, quality int) (string, error) {
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Capturer periodically grabs a frame, tags it with the current position and
// uploads it.
type Capturer struct {
	frames   FrameSource
	locator  Locator
	uploader Uploader

	Interval    time.Duration
	MaxWidth    int
	JPEGQuality int

	mu       sync.Mutex
	uploaded int
	failed   int
}

// NewCapturer creates a capturer with settings from cfg
func NewCapturer(frames FrameSource, locator Locator, uploader Uploader, cfg CaptureConfig) *Capturer {
	c := &Capturer{
		frames:      frames,
		locator:     locator,
		uploader:    uploader,
		Interval:    cfg.Interval,
		MaxWidth:    cfg.MaxWidth,
		JPEGQuality: cfg.JPEGQuality,
	}
	if c.Interval <= 0 {
		c.Interval = DefaultCaptureInterval
	}
	return c
}

// Run captures every Interval until ctx is done. The first capture happens
// one interval after the start. Failed captures are logged and skipped.
func (c *Capturer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	log.Printf("[CAPTURE] Capturing every %v", c.Interval)
	for {
		select {
		case <-ctx.Done():
			uploaded, failed := c.Stats()
			log.Printf("[CAPTURE] Stopped after %d uploads (%d failed)", uploaded, failed)
			return nil
		case <-ticker.C:
			if err := c.CaptureOnce(ctx); err != nil {
				log.Printf("[CAPTURE] %v", err)
			}
		}
	}
}

// CaptureOnce grabs, locates and uploads a single frame. Without a position
// fix nothing is uploaded.
func (c *Capturer) CaptureOnce(ctx context.Context) error {
	img, err := c.frames.NextFrame(ctx)
	if err != nil {
		return fmt.Errorf("grabbing frame: %w", err)
	}

	pos, err := c.locator.Locate(ctx)
	if err != nil {
		return fmt.Errorf("locating frame: %w", err)
	}

	dataURL, err := EncodeFrame(img, c.MaxWidth, c.JPEGQuality)
	if err != nil {
		return err
	}

	err = c.uploader.Capture(ctx, CaptureRequest{
		Image:     dataURL,
		Latitude:  pos.Lat,
		Longitude: pos.Lon,
	})
	recordUpload(err)

	c.mu.Lock()
	if err != nil {
		c.failed++
	} else {
		c.uploaded++
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("uploading frame: %w", err)
	}
	return nil
}

// Stats returns the number of successful and failed uploads
func (c *Capturer) Stats() (uploaded, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploaded, c.failed
}
