package transcoder

import (
	"strings"
	"testing"

	"media-viewer/internal/config"
)

func TestIsGPUError_NVIDIAErrors(t *testing.T) {
	tr := &Transcoder{}
	cases := []string{
		"Cannot load libcuda.so.1",
		"No NVENC capable devices found",
		"CUDA error: out of memory",
	}
	for _, c := range cases {
		if !tr.isGPUError(c) {
			t.Errorf("expected %q to be classified as a GPU error", c)
		}
	}
}

func TestIsGPUError_VAAPIErrors(t *testing.T) {
	tr := &Transcoder{}
	if !tr.isGPUError("Failed to initialize VAAPI connection: -1") {
		t.Error("expected VAAPI init failure to be classified as a GPU error")
	}
	if !tr.isGPUError("/dev/dri/renderD128: No such file or directory") {
		t.Error("expected missing render node to be classified as a GPU error")
	}
}

func TestIsGPUError_VideoToolboxErrors(t *testing.T) {
	tr := &Transcoder{}
	if !tr.isGPUError("kVTCouldNotFindVideoEncoderErr") {
		t.Error("expected VideoToolbox encoder-not-found error to be classified as a GPU error")
	}
}

func TestIsGPUError_CaseInsensitive(t *testing.T) {
	tr := &Transcoder{}
	if !tr.isGPUError("CUDA ERROR") {
		t.Error("expected case-insensitive match")
	}
}

func TestIsGPUError_UnrelatedFailureNotClassified(t *testing.T) {
	tr := &Transcoder{}
	if tr.isGPUError("Invalid argument: unknown option -xyz") {
		t.Error("unrelated ffmpeg failure should not be classified as a GPU error")
	}
}

func TestCheckGPUDeviceAccess_None(t *testing.T) {
	tr := &Transcoder{}
	if !tr.checkGPUDeviceAccess(GPUAccelNone) {
		t.Error("GPUAccelNone should report access available (no-op path)")
	}
}

func TestDetectGPU_NoneModeSkipsDetection(t *testing.T) {
	tr := &Transcoder{gpuAccel: GPUAccelNone}
	tr.detectGPU()
	if tr.gpuAvailable {
		t.Error("expected gpuAvailable to remain false when accel mode is none")
	}
}

func TestDetectGPU_IdempotentAcrossCalls(t *testing.T) {
	tr := &Transcoder{gpuAccel: GPUAccelNone}
	tr.detectGPU()
	tr.detectGPU()
	if !tr.gpuDetectionDone {
		t.Error("expected gpuDetectionDone to be set after first call")
	}
}

func TestAddCPUEncoderArgs(t *testing.T) {
	tr := &Transcoder{}
	args := tr.addCPUEncoderArgs(nil, config.Rung{Name: "720p", Height: 720, VideoKbps: 2800, AudioKbps: 128})
	if !argsContain(args, "libx264") {
		t.Error("expected libx264 in CPU encoder args")
	}
	if !argsContain(args, "scale=-2:720") {
		t.Error("expected a height-720 scale filter")
	}
}

func TestAddGPUEncoderArgs_NVIDIA(t *testing.T) {
	tr := &Transcoder{gpuAvailable: true, gpuEncoder: "h264_nvenc", gpuAccel: GPUAccelNVIDIA}
	args := tr.addGPUEncoderArgs(nil, config.Rung{Name: "1080p", Height: 1080, VideoKbps: 5000, AudioKbps: 160})
	if !argsContain(args, "h264_nvenc") {
		t.Error("expected h264_nvenc encoder")
	}
	if !argsContain(args, "p4") {
		t.Error("expected NVENC preset p4")
	}
}

func TestAddGPUEncoderArgs_VAAPI(t *testing.T) {
	tr := &Transcoder{gpuAvailable: true, gpuEncoder: "h264_vaapi", gpuAccel: GPUAccelVAAPI, gpuInitFilter: "format=nv12,hwupload"}
	args := tr.addGPUEncoderArgs(nil, config.Rung{Name: "720p", Height: 720, VideoKbps: 2800, AudioKbps: 128})
	if !argsContain(args, "scale_vaapi=w=-2:h=720") {
		t.Errorf("expected a vaapi scale filter, got %v", args)
	}
}

func TestSelectRungsFiltersTallerRungs(t *testing.T) {
	rungs := selectRungs(720)
	for _, r := range rungs {
		if r.Height > 720 {
			t.Errorf("selectRungs(720) included a taller rung: %s", r.Name)
		}
	}
	if len(rungs) == 0 {
		t.Fatal("expected at least one rung")
	}
}

func TestSelectRungsKeepsSmallestRungForTinySource(t *testing.T) {
	rungs := selectRungs(180)
	if len(rungs) != 1 {
		t.Fatalf("expected exactly the smallest rung, got %d rungs", len(rungs))
	}
	if rungs[0].Name != "360p" {
		t.Errorf("expected 360p fallback, got %s", rungs[0].Name)
	}
}

func TestSelectRungsUnknownHeightKeepsFullLadder(t *testing.T) {
	rungs := selectRungs(0)
	if len(rungs) != len(config.Rungs) {
		t.Errorf("expected the full ladder when source height is unknown, got %d", len(rungs))
	}
}

func TestScaledWidthConstrainsToEvenNumber(t *testing.T) {
	w := scaledWidth(1919, 1079, 720)
	if w%2 != 0 {
		t.Errorf("scaledWidth must return an even width, got %d", w)
	}
}

func TestIsTransientSignalErrorFalseForNilError(t *testing.T) {
	if isTransientSignalError(nil) {
		t.Error("nil error should not be classified as transient")
	}
}

func TestExtractFrameRateParsesFraction(t *testing.T) {
	output := `{"streams":[{"avg_frame_rate":"30000/1001"}]}`
	got := extractFrameRate(output)
	if got < 29.9 || got > 30.0 {
		t.Errorf("extractFrameRate = %v, want ~29.97", got)
	}
}

func TestExtractFrameRateZeroDenominator(t *testing.T) {
	output := `{"avg_frame_rate":"0/0"}`
	if got := extractFrameRate(output); got != 0 {
		t.Errorf("extractFrameRate with 0/0 = %v, want 0", got)
	}
}

func TestFormatSeekTime(t *testing.T) {
	got := formatSeekTime(65.5)
	want := "00:01:05.500"
	if got != want {
		t.Errorf("formatSeekTime(65.5) = %q, want %q", got, want)
	}
}

func argsContain(args []string, needle string) bool {
	for _, a := range args {
		if a == needle || strings.Contains(a, needle) {
			return true
		}
	}
	return false
}
