package startup

import (
	"testing"
	"time"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion == "" {
		t.Error("Expected GoVersion to be set")
	}
	if info.OS == "" {
		t.Error("Expected OS to be set")
	}
	if info.Arch == "" {
		t.Error("Expected Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestBuildInfoStruct(t *testing.T) {
	info := BuildInfo{
		Version:   "1.0.0",
		Commit:    "abc123",
		BuildTime: "2026-01-01",
		GoVersion: "go1.21.0",
		OS:        "linux",
		Arch:      "amd64",
	}

	if info.Version != "1.0.0" {
		t.Errorf("Expected Version='1.0.0', got %q", info.Version)
	}
	if info.Commit != "abc123" {
		t.Errorf("Expected Commit='abc123', got %q", info.Commit)
	}
}

// None of these logging helpers return a value to assert on; the only
// contract worth testing is that they never panic regardless of input.

func TestPrintBannerDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("PrintBanner panicked: %v", r)
		}
	}()
	PrintBanner()
}

func TestLogSystemInfoDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogSystemInfo panicked: %v", r)
		}
	}()
	LogSystemInfo()
}

func TestLogDatabaseInitDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogDatabaseInit panicked: %v", r)
		}
	}()
	LogDatabaseInit(250 * time.Millisecond)
}

func TestLogTranscoderInitDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogTranscoderInit panicked: %v", r)
		}
	}()
	LogTranscoderInit(true)
	LogTranscoderInit(false)
}

func TestLogUploadPipelineInitDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogUploadPipelineInit panicked: %v", r)
		}
	}()
	LogUploadPipelineInit(4, 3)
}

func TestLogAccessEngineInitDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogAccessEngineInit panicked: %v", r)
		}
	}()
	LogAccessEngineInit()
}

func TestLogSweeperLifecycleDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("sweeper logging panicked: %v", r)
		}
	}()
	LogSweeperInit(10 * time.Minute)
	LogSweeperStarted()
}

func TestLogReadyDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("LogReady panicked: %v", r)
		}
	}()
	LogReady(1500 * time.Millisecond)
}

func TestShutdownLoggingDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("shutdown logging panicked: %v", r)
		}
	}()
	LogShutdownInitiated("SIGTERM")
	LogShutdownStep("closing database")
	LogShutdownStepComplete("closing database")
	LogShutdownComplete()
}
