// Package emulated implements a capture device that replays still images from a folder, in
// file name order, looping forever. The folder is watched and the playlist refreshed when files
// appear or disappear.
package emulated

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/noegame/ROD/components/camera/driver"
	"github.com/noegame/ROD/logging"
	"github.com/noegame/ROD/rimage"
	"github.com/noegame/ROD/utils"
)

// DefaultFrameInterval paces replay at roughly ten frames per second.
const DefaultFrameInterval = 100 * time.Millisecond

// DefaultBufferCount is the number of buffers allocated by an emulated device.
const DefaultBufferCount = 4

// refreshDelay coalesces the burst of events a single file copy produces.
const refreshDelay = 50 * time.Millisecond

var supportedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ListImages returns the supported image files of dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Config configures the emulated driver.
type Config struct {
	Path          string
	FrameInterval time.Duration
	BufferCount   int
}

// Driver opens emulated devices reading from Config.Path. The device index is ignored.
type Driver struct {
	cfg Config
}

// NewDriver returns a driver replaying the images under cfg.Path.
func NewDriver(cfg Config) *Driver {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.BufferCount <= 0 {
		cfg.BufferCount = DefaultBufferCount
	}
	return &Driver{cfg: cfg}
}

// Open checks that the folder holds at least one image.
func (d *Driver) Open(ctx context.Context, index int, logger logging.Logger) (driver.Device, error) {
	files, err := ListImages(d.cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read simulated capture source %q", d.cfg.Path)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no .jpg, .jpeg or .png images in %q", d.cfg.Path)
	}
	logger.Infow("emulated camera opened", "path", d.cfg.Path, "images", len(files))
	return &device{cfg: d.cfg, logger: logger, files: files, cache: map[string]*image.NRGBA{}}, nil
}

type device struct {
	deliverMu sync.Mutex

	mu      sync.Mutex
	cfg     Config
	logger  logging.Logger
	files   []string
	next    int
	cache   map[string]*image.NRGBA
	stream  driver.StreamConfig
	buffers []driver.Buffer
	queued  []int
	handler driver.CompletionHandler
	running bool
	seq     uint64
	workers utils.StoppableWorkers
}

func (d *device) Configure(req driver.StreamConfig) (driver.StreamConfig, error) {
	if req.Format != "" && req.Format != rimage.PixelFormatBGR888 {
		return driver.StreamConfig{}, errors.Errorf("emulated camera only produces %s, not %s", rimage.PixelFormatBGR888, req.Format)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return driver.StreamConfig{}, errors.Errorf("unsupported size %dx%d", req.Width, req.Height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream = driver.StreamConfig{
		Width:       req.Width,
		Height:      req.Height,
		Stride:      req.Width * 3,
		Format:      rimage.PixelFormatBGR888,
		BufferCount: d.cfg.BufferCount,
	}
	d.cache = map[string]*image.NRGBA{}
	return d.stream, nil
}

func (d *device) Allocate() ([]driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	size := d.stream.FrameSize()
	if size == 0 {
		return nil, errors.New("stream not configured")
	}
	d.buffers = make([]driver.Buffer, d.stream.BufferCount)
	for i := range d.buffers {
		d.buffers[i] = driver.Buffer{Index: i, Data: make([]byte, size)}
	}
	return d.buffers, nil
}

func (d *device) Start(controls driver.Controls, handler driver.CompletionHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("already streaming")
	}
	d.handler = handler
	d.running = true
	d.workers = utils.NewStoppableWorkers(d.produce, d.watch)
	return nil
}

func (d *device) produce(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.deliverNext()
		}
	}
}

func (d *device) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warnw("cannot watch simulated capture source", "error", err)
		return
	}
	defer goutils.UncheckedErrorFunc(watcher.Close)
	if err := watcher.Add(d.cfg.Path); err != nil {
		d.logger.Warnw("cannot watch simulated capture source", "path", d.cfg.Path, "error", err)
		return
	}
	debounced := debounce.New(refreshDelay)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			d.evict(event.Name)
			debounced(d.refresh)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warnw("simulated capture source watcher error", "error", err)
		}
	}
}

// evict drops a file that vanished or changed from the cache.
func (d *device) evict(changed string) {
	d.mu.Lock()
	delete(d.cache, changed)
	d.mu.Unlock()
}

// refresh reloads the playlist.
func (d *device) refresh() {
	files, err := ListImages(d.cfg.Path)
	if err != nil {
		d.logger.Warnw("cannot list simulated capture source", "error", err)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(files) == 0 {
		d.logger.Warnw("simulated capture source is empty, keeping previous playlist", "path", d.cfg.Path)
		return
	}
	d.files = files
	if d.next >= len(files) {
		d.next = 0
	}
	d.logger.Debugw("simulated capture playlist refreshed", "images", len(files))
}

// frameFor loads, resizes and caches the image at path.
func (d *device) frameFor(path string, width, height int) (*image.NRGBA, error) {
	d.mu.Lock()
	cached, ok := d.cache[path]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(img, width, height, imaging.Lanczos)
	d.mu.Lock()
	d.cache[path] = resized
	d.mu.Unlock()
	return resized, nil
}

func (d *device) deliverNext() {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if !d.running || len(d.queued) == 0 {
		d.mu.Unlock()
		return
	}
	slot := d.queued[0]
	d.queued = d.queued[1:]
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.seq++
	seq := d.seq
	stream := d.stream
	buf := d.buffers[slot].Data
	handler := d.handler
	d.mu.Unlock()

	c := driver.Completion{Slot: slot, Seq: seq, Timestamp: time.Now()}
	img, err := d.frameFor(path, stream.Width, stream.Height)
	if err != nil {
		c.Status = driver.StatusError
		c.Err = errors.Wrapf(err, "cannot load %q", path)
	} else {
		writeBGR(buf, stream.Stride, img)
		c.Status = driver.StatusSuccess
		c.BytesUsed = stream.FrameSize()
	}
	handler(c)
}

func writeBGR(dst []byte, stride int, img *image.NRGBA) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		row := dst[y*stride:]
		for x := 0; x < b.Dx(); x++ {
			row[x*3] = src[x*4+2]
			row[x*3+1] = src[x*4+1]
			row[x*3+2] = src[x*4]
		}
	}
}

func (d *device) Queue(slot int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.New("device not streaming")
	}
	if slot < 0 || slot >= len(d.buffers) {
		return errors.Errorf("slot %d out of range", slot)
	}
	d.queued = append(d.queued, slot)
	return nil
}

func (d *device) Stop() error {
	d.mu.Lock()
	workers := d.workers
	d.workers = nil
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}

	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancelled := d.queued
	d.queued = nil
	d.running = false
	handler := d.handler
	d.handler = nil
	d.mu.Unlock()

	for _, slot := range cancelled {
		handler(driver.Completion{Slot: slot, Status: driver.StatusCancelled, Timestamp: time.Now()})
	}
	return nil
}

func (d *device) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = nil
	return nil
}

func (d *device) Close() error {
	return nil
}
