package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-viewer/internal/apperr"
	"media-viewer/internal/config"
	"media-viewer/internal/logging"
	"media-viewer/internal/mediaitem"
)

// GPUAccel represents the GPU acceleration method.
type GPUAccel string

const (
	GPUAccelNone         GPUAccel = "none"
	GPUAccelAuto         GPUAccel = "auto"
	GPUAccelNVIDIA       GPUAccel = "nvidia"
	GPUAccelVAAPI        GPUAccel = "vaapi"
	GPUAccelVideoToolbox GPUAccel = "videotoolbox"
)

// segmentSeconds is the nominal HLS segment duration the rung ladder
// contract fixes at 6 seconds.
const segmentSeconds = 6

// Transcoder produces an HLS rendition ladder from a source video and grabs
// single-frame JPEGs for thumbnail/poster generation.
type Transcoder struct {
	enabled   bool
	processes map[string]*exec.Cmd
	processMu sync.Mutex

	gpuAccel         GPUAccel
	gpuEncoder       string
	gpuInitFilter    string
	gpuAvailable     bool
	gpuDetectionDone bool
	gpuMu            sync.Mutex

	shuttingDown atomic.Bool
}

// VideoInfo is an ffprobe-derived struct, extended with FPS
// for the Media Item Contract's metadata fields.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	FPS      float64
}

// New creates a Transcoder, detecting GPU acceleration capability up front
// at construction time, so every Transcode call reuses the result.
func New(gpuAccel string, enabled bool) *Transcoder {
	logging.Info("Transcoder initialized: enabled=%v, gpuAccel=%q", enabled, gpuAccel)

	t := &Transcoder{
		enabled:   enabled,
		processes: make(map[string]*exec.Cmd),
		gpuAccel:  GPUAccel(gpuAccel),
	}

	if t.gpuAccel != GPUAccelNone {
		logging.Info("------------------------------------------------------------")
		t.detectGPU()
		logging.Info("------------------------------------------------------------")
	}

	return t
}

func (t *Transcoder) IsEnabled() bool { return t.enabled }

// GetVideoInfo retrieves codec, dimension, duration, and frame-rate
// information via ffprobe's JSON output. Field extraction stays a
// lightweight substring scan rather than a full JSON decode, since the
// full -show_streams/-show_format payload carries fields this package
// doesn't need and the shape is stable enough in practice.
func (t *Transcoder) GetVideoInfo(ctx context.Context, filePath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrap(apperr.External, fmt.Sprintf("ffprobe error: %s", stderr.String()), err)
	}

	output := stdout.String()
	info := &VideoInfo{}

	if idx := strings.Index(output, `"duration"`); idx != -1 {
		start := strings.Index(output[idx:], ":") + idx + 1
		end := strings.Index(output[start:], ",")
		if end == -1 {
			end = strings.Index(output[start:], "}")
		}
		durStr := strings.Trim(output[start:start+end], ` "`)
		info.Duration, _ = strconv.ParseFloat(durStr, 64)
	}

	if idx := strings.Index(output, `"codec_name"`); idx != -1 {
		start := strings.Index(output[idx:], ":") + idx + 1
		end := strings.Index(output[start:], ",")
		info.Codec = strings.Trim(output[start:start+end], ` "`)
	}

	info.Width = extractJSONInt(output, `"width"`)
	info.Height = extractJSONInt(output, `"height"`)
	info.FPS = extractFrameRate(output)

	// H.264 requires even dimensions; nudge odd ones up by one pixel.
	if info.Width%2 != 0 {
		info.Width++
	}
	if info.Height%2 != 0 {
		info.Height++
	}

	return info, nil
}

func extractJSONInt(output, key string) int {
	idx := strings.Index(output, key)
	if idx == -1 {
		return 0
	}
	start := strings.Index(output[idx:], ":") + idx + 1
	endComma := strings.Index(output[start:], ",")
	endBrace := strings.Index(output[start:], "}")
	end := endComma
	if end == -1 || (endBrace != -1 && endBrace < end) {
		end = endBrace
	}
	if end == -1 {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(output[start : start+end]))
	return n
}

// extractFrameRate parses ffprobe's "avg_frame_rate": "30000/1001" shape.
func extractFrameRate(output string) float64 {
	idx := strings.Index(output, `"avg_frame_rate"`)
	if idx == -1 {
		return 0
	}
	start := strings.Index(output[idx:], ":") + idx + 1
	end := strings.Index(output[start:], ",")
	if end == -1 {
		end = strings.Index(output[start:], "}")
	}
	if end == -1 {
		return 0
	}
	raw := strings.Trim(output[start:start+end], ` "`)
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0
	}
	return num / den
}

// ProbeVideo satisfies mediaitem.FrameGrabber.
func (t *Transcoder) ProbeVideo(ctx context.Context, path string) (mediaitem.VideoProbe, error) {
	info, err := t.GetVideoInfo(ctx, path)
	if err != nil {
		return mediaitem.VideoProbe{}, err
	}
	return mediaitem.VideoProbe{
		Width: info.Width, Height: info.Height,
		DurationSeconds: info.Duration, Codec: info.Codec, FPS: info.FPS,
	}, nil
}

// GrabFrame extracts a single JPEG frame at atSeconds. Satisfies
// mediaitem.FrameGrabber: it seeks ffmpeg to atSeconds and returns the
// encoded JPEG bytes directly instead of decoding to image.Image.
func (t *Transcoder) GrabFrame(ctx context.Context, path string, atSeconds float64) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, apperr.Wrap(apperr.External, "ffmpeg not found", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "ffmpeg",
		"-ss", formatSeekTime(atSeconds),
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrap(apperr.External, fmt.Sprintf("ffmpeg frame grab failed: %s", stderr.String()), err)
	}
	if stdout.Len() == 0 {
		return nil, apperr.New(apperr.Processing, "ffmpeg produced no frame output")
	}
	return stdout.Bytes(), nil
}

func formatSeekTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	ms := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// Job describes one Transcode invocation.
type Job struct {
	Slug       string // used as the process-registry key for Cancel
	SourcePath string
	OutputDir  string // rungs are written to OutputDir/{rung}/index.m3u8; master.m3u8 sits at OutputDir/master.m3u8
}

// RungOutput is one produced rendition.
type RungOutput struct {
	Name         string
	PlaylistPath string
	Width        int
	Height       int
	BandwidthBps int
}

// Result is everything Transcode produced.
type Result struct {
	MasterPlaylistPath string
	Rungs              []RungOutput
	Probe              VideoInfo
}

// Transcode produces the fixed HLS ladder (filtered to rungs no taller than
// the source, always keeping at least one rung) at segmentSeconds-second
// segments, then writes a master playlist referencing every rendition.
// Each rung is retried once if ffmpeg exits via a transient signal
// (SIGKILL/SIGTERM, commonly an OOM-killed worker under load).
func (t *Transcoder) Transcode(ctx context.Context, job Job) (*Result, error) {
	if !t.enabled {
		return nil, apperr.New(apperr.Validation, "transcoding is disabled")
	}

	info, err := t.GetVideoInfo(ctx, job.SourcePath)
	if err != nil {
		return nil, apperr.WrapStage("transcode", "probe source before ladder transcode", err)
	}

	rungs := selectRungs(info.Height)

	t.processMu.Lock()
	if _, exists := t.processes[job.Slug]; exists {
		t.processMu.Unlock()
		return nil, apperr.New(apperr.Conflict, "a transcode is already running for this slug")
	}
	t.processMu.Unlock()
	defer func() {
		t.processMu.Lock()
		delete(t.processes, job.Slug)
		t.processMu.Unlock()
	}()

	var outputs []RungOutput
	for _, rung := range rungs {
		out, err := t.transcodeRungWithRetry(ctx, job, rung, info)
		if err != nil {
			return nil, apperr.WrapStage("transcode", fmt.Sprintf("rung %s", rung.Name), err)
		}
		outputs = append(outputs, out)
	}

	masterPath := filepath.Join(job.OutputDir, "master.m3u8")
	if err := writeMasterPlaylist(masterPath, outputs); err != nil {
		return nil, apperr.WrapStage("transcode", "write master playlist", err)
	}

	return &Result{MasterPlaylistPath: masterPath, Rungs: outputs, Probe: *info}, nil
}

// selectRungs keeps every configured rung no taller than the source's own
// height, always keeping the shortest rung even if the source is smaller
// than it (so there is never a zero-rendition ladder).
func selectRungs(sourceHeight int) []config.Rung {
	var out []config.Rung
	for _, r := range config.Rungs {
		if sourceHeight == 0 || r.Height <= sourceHeight {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = append(out, config.Rungs[len(config.Rungs)-1])
	}
	return out
}

func (t *Transcoder) transcodeRungWithRetry(ctx context.Context, job Job, rung config.Rung, info *VideoInfo) (RungOutput, error) {
	out, err := t.transcodeRung(ctx, job, rung, info)
	if err == nil {
		return out, nil
	}
	if !isTransientSignalError(err) {
		return RungOutput{}, err
	}
	logging.Warn("rung %s for %s exited on a transient signal, retrying once: %v", rung.Name, job.Slug, err)
	return t.transcodeRung(ctx, job, rung, info)
}

func (t *Transcoder) transcodeRung(ctx context.Context, job Job, rung config.Rung, info *VideoInfo) (RungOutput, error) {
	rungDir := filepath.Join(job.OutputDir, rung.Name)
	if err := os.MkdirAll(rungDir, 0o750); err != nil {
		return RungOutput{}, apperr.Wrap(apperr.Storage, "create rung output dir", err)
	}
	playlistPath := filepath.Join(rungDir, "index.m3u8")
	segmentPattern := filepath.Join(rungDir, "seg%05d.ts")

	args := t.buildLadderArgs(job.SourcePath, playlistPath, segmentPattern, rung, info)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.processMu.Lock()
	t.processes[job.Slug] = cmd
	t.processMu.Unlock()

	err := cmd.Run()

	t.processMu.Lock()
	delete(t.processes, job.Slug)
	t.processMu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return RungOutput{}, apperr.Wrap(apperr.Cancelled, "transcode cancelled", ctx.Err())
		}
		return RungOutput{}, apperr.Wrap(apperr.External, fmt.Sprintf("ffmpeg failed: %s", stderr.String()), err)
	}

	width := scaledWidth(info.Width, info.Height, rung.Height)
	return RungOutput{
		Name: rung.Name, PlaylistPath: playlistPath,
		Width: width, Height: rung.Height,
		BandwidthBps: (rung.VideoKbps + rung.AudioKbps) * 1000,
	}, nil
}

// buildLadderArgs builds the ffmpeg invocation for one rung, reusing the
// same GPU-vs-CPU encoder selection as an on-the-fly streaming transcoder
// against an HLS segmenter muxer instead of an MP4 muxer.
func (t *Transcoder) buildLadderArgs(inputPath, playlistPath, segmentPattern string, rung config.Rung, info *VideoInfo) []string {
	var args []string

	if t.gpuAvailable && t.gpuEncoder != "" && t.gpuAccel == GPUAccelVAAPI {
		args = append(args, "-init_hw_device", "vaapi=vaapi0:/dev/dri/renderD128", "-filter_hw_device", "vaapi0")
	}

	args = append(args, "-i", inputPath)

	if t.gpuAvailable && t.gpuEncoder != "" {
		args = t.addGPUEncoderArgs(args, rung)
	} else {
		args = t.addCPUEncoderArgs(args, rung)
	}

	args = append(args,
		"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", rung.AudioKbps),
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	)
	return args
}

func (t *Transcoder) addGPUEncoderArgs(args []string, rung config.Rung) []string {
	var filters []string
	if t.gpuInitFilter != "" {
		filters = append(filters, t.gpuInitFilter)
	}
	if t.gpuAccel == GPUAccelVAAPI {
		filters = append(filters, fmt.Sprintf("scale_vaapi=w=-2:h=%d", rung.Height))
	} else {
		filters = append(filters, fmt.Sprintf("scale=-2:%d", rung.Height))
	}
	args = append(args, "-vf", strings.Join(filters, ","))
	args = append(args, "-c:v", t.gpuEncoder, "-b:v", fmt.Sprintf("%dk", rung.VideoKbps))

	switch t.gpuAccel {
	case GPUAccelNVIDIA:
		args = append(args, "-preset", "p4")
	case GPUAccelVAAPI:
		args = append(args, "-qp", "23")
	case GPUAccelVideoToolbox:
		// bitrate already set above
	case GPUAccelNone, GPUAccelAuto:
		logging.Warn("unexpected GPU accel type in addGPUEncoderArgs: %s", t.gpuAccel)
	}
	return args
}

func (t *Transcoder) addCPUEncoderArgs(args []string, rung config.Rung) []string {
	return append(args,
		"-vf", fmt.Sprintf("scale=-2:%d", rung.Height),
		"-c:v", "libx264", "-preset", "fast", "-b:v", fmt.Sprintf("%dk", rung.VideoKbps),
		"-g", strconv.Itoa(segmentSeconds*30), // keyframe interval aligned to segment boundaries at ~30fps
	)
}

func scaledWidth(srcW, srcH, targetH int) int {
	if srcW <= 0 || srcH <= 0 || targetH <= 0 {
		return 0
	}
	w := srcW * targetH / srcH
	if w%2 != 0 {
		w++
	}
	return w
}

func writeMasterPlaylist(path string, rungs []RungOutput) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	for _, r := range rungs {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", r.BandwidthBps, r.Width, r.Height)
		fmt.Fprintf(&b, "%s/index.m3u8\n", r.Name)
	}
	return os.WriteFile(path, []byte(b.String()), 0o640)
}

// isTransientSignalError reports whether err looks like ffmpeg was killed
// by a signal (SIGKILL/SIGTERM) rather than failing on its own — the one
// case this package retries once automatically.
func isTransientSignalError(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return !exitErr.Exited()
}

// Cancel kills any in-flight ffmpeg process for the given slug.
func (t *Transcoder) Cancel(slug string) {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	if cmd, ok := t.processes[slug]; ok && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			logging.Warn("failed to kill transcode process for %s: %v", slug, err)
		}
	}
}

// Cleanup terminates every active transcoding process. Call during shutdown.
func (t *Transcoder) Cleanup() {
	t.shuttingDown.Store(true)

	t.processMu.Lock()
	defer t.processMu.Unlock()
	for slug, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("killing transcoding process for: %s", slug)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for %s: %v", slug, err)
			}
		}
	}
}

func (t *Transcoder) detectGPU() {
	t.gpuMu.Lock()
	defer t.gpuMu.Unlock()

	if t.gpuDetectionDone {
		return
	}
	t.gpuDetectionDone = true

	if t.gpuAccel == GPUAccelNone {
		logging.Info("GPU acceleration disabled (GPU_ACCEL=none)")
		return
	}

	logging.Info("Detecting GPU acceleration capabilities (GPU_ACCEL=%s)...", t.gpuAccel)

	var encodersToTry []struct {
		accel   GPUAccel
		encoder string
		filter  string
	}

	switch t.gpuAccel {
	case GPUAccelNone:
		return
	case GPUAccelNVIDIA:
		encodersToTry = append(encodersToTry, struct {
			accel   GPUAccel
			encoder string
			filter  string
		}{GPUAccelNVIDIA, "h264_nvenc", ""})
	case GPUAccelVAAPI:
		encodersToTry = append(encodersToTry, struct {
			accel   GPUAccel
			encoder string
			filter  string
		}{GPUAccelVAAPI, "h264_vaapi", "format=nv12,hwupload"})
	case GPUAccelVideoToolbox:
		encodersToTry = append(encodersToTry, struct {
			accel   GPUAccel
			encoder string
			filter  string
		}{GPUAccelVideoToolbox, "h264_videotoolbox", ""})
	case GPUAccelAuto:
		encodersToTry = []struct {
			accel   GPUAccel
			encoder string
			filter  string
		}{
			{GPUAccelNVIDIA, "h264_nvenc", ""},
			{GPUAccelVAAPI, "h264_vaapi", "format=nv12,hwupload"},
			{GPUAccelVideoToolbox, "h264_videotoolbox", ""},
		}
	default:
		logging.Warn("unknown GPU acceleration mode: %s, falling back to CPU", t.gpuAccel)
		return
	}

	for _, test := range encodersToTry {
		if !t.checkGPUDeviceAccess(test.accel) {
			continue
		}
		logging.Info("Testing %s encoder (%s)...", test.accel, test.encoder)
		if !t.testGPUEncoder(test.encoder, test.accel, test.filter) {
			logging.Info("GPU encoder test failed: %s", test.accel)
			continue
		}
		t.gpuAvailable = true
		t.gpuEncoder = test.encoder
		t.gpuInitFilter = test.filter
		t.gpuAccel = test.accel
		logging.Info("GPU acceleration enabled: %s (encoder: %s)", test.accel, test.encoder)
		return
	}

	logging.Warn("No GPU encoder available, falling back to CPU encoding")
}

func (t *Transcoder) checkGPUDeviceAccess(accel GPUAccel) bool {
	switch accel {
	case GPUAccelNVIDIA:
		for _, device := range []string{"/dev/nvidia0", "/dev/nvidiactl", "/dev/nvidia-uvm"} {
			if _, err := os.Stat(device); err == nil {
				return true
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		output, err := exec.CommandContext(ctx, "nvidia-smi", "-L").Output()
		if err == nil && len(output) > 0 {
			logging.Warn("NVIDIA GPU detected but device files not accessible - container may need --gpus=all")
			return true
		}
		return false

	case GPUAccelVAAPI:
		for _, device := range []string{"/dev/dri/renderD128", "/dev/dri/renderD129", "/dev/dri/card0", "/dev/dri/card1"} {
			if _, err := os.Stat(device); err == nil {
				return true
			}
		}
		return false

	case GPUAccelVideoToolbox:
		return runtime.GOOS == "darwin"

	case GPUAccelNone, GPUAccelAuto:
		return true

	default:
		return true
	}
}

func (t *Transcoder) testGPUEncoder(encoder string, accel GPUAccel, initFilter string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		return false
	}
	if !bytes.Contains(output, []byte(encoder)) {
		return false
	}

	testCtx, testCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer testCancel()

	var testArgs []string
	if accel == GPUAccelVAAPI {
		testArgs = append(testArgs, "-init_hw_device", "vaapi=vaapi0:/dev/dri/renderD128", "-filter_hw_device", "vaapi0")
	}
	testArgs = append(testArgs, "-f", "lavfi", "-i", "testsrc=duration=0.1:size=320x240:rate=1", "-frames:v", "1")
	if initFilter != "" {
		testArgs = append(testArgs, "-vf", initFilter)
	}
	testArgs = append(testArgs, "-c:v", encoder)

	switch accel {
	case GPUAccelNVIDIA:
		testArgs = append(testArgs, "-preset", "p1")
	case GPUAccelVAAPI:
		testArgs = append(testArgs, "-qp", "30")
	case GPUAccelVideoToolbox:
		testArgs = append(testArgs, "-b:v", "500k")
	case GPUAccelNone, GPUAccelAuto:
	}
	testArgs = append(testArgs, "-f", "null", "-")

	testCmd := exec.CommandContext(testCtx, "ffmpeg", testArgs...)
	var stderr bytes.Buffer
	testCmd.Stderr = &stderr

	if err := testCmd.Run(); err != nil {
		if t.isGPUError(stderr.String()) {
			return false
		}
		return false
	}
	return true
}

func (t *Transcoder) isGPUError(stderrOutput string) bool {
	lower := strings.ToLower(stderrOutput)
	patterns := []string{
		"cannot load libcuda", "libcuda", "no nvenc capable devices found", "nvenc not available", "nvenc", "cuda", "nvcuda",
		"libva", "vaapi", "/dev/dri", "no va display found", "failed to initialize vaapi", "vaapiencodevp", "cannot open render node", "drm",
		"videotoolbox", "kvtcouldnotfindvideoencoder", "coremedia", "vt session", "vtcompressionoutputcallback",
		"cannot load", "cannot open", "not supported", "no device available", "failed loading", "cannot initialize", "hardware", "device creation failed", "no hwaccel",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
