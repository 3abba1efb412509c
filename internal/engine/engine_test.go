package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ManuGH/pvremux/internal/config"
	"github.com/ManuGH/pvremux/internal/domain/recording"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/supervisor"
	"github.com/ManuGH/pvremux/internal/validate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes the output artifact with content chosen by the test.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Invocation
	content func(inv Invocation) string
	stats   Stats
	err     error
}

func (f *fakeRunner) Run(_ context.Context, _ *supervisor.JobControl, inv Invocation) (Stats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.err != nil {
		return Stats{}, f.err
	}
	body := "good"
	if f.content != nil {
		body = f.content(inv)
	}
	if body != "" {
		if err := os.WriteFile(inv.Artifacts[0], []byte(body), 0o600); err != nil {
			return Stats{}, err
		}
	}
	return f.stats, nil
}

// contentValidator maps file content to a validation result.
type contentValidator struct{}

func (contentValidator) Validate(_ context.Context, path, _ string) validate.Result {
	b, err := os.ReadFile(path)
	if err != nil {
		return validate.Result{Code: validate.CodeMissing, Reason: "missing"}
	}
	switch string(b) {
	case "good":
		return validate.Result{OK: true, Code: validate.CodeOK}
	case "zero":
		return validate.Result{
			Code:   validate.CodeZeroChannel,
			Reason: "audio track 0 has zero channels",
			Info:   &media.StreamInfo{VideoIndex: 0, Audio: []media.AudioTrack{{Channels: 0}}},
		}
	default:
		return validate.Result{Code: validate.CodeProbeFailed, Reason: "unreadable"}
	}
}

func hasArgPair(args []string, a, b string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == a && args[i+1] == b {
			return true
		}
	}
	return false
}

func newJob(t *testing.T, name string) recording.Job {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(src, []byte("source bytes"), 0o600))
	return recording.Job{ID: "job-1", SourcePath: src, WorkDir: dir}
}

func defaultEngine(t *testing.T, runner Runner, info *media.StreamInfo) *Engine {
	t.Helper()
	cfg := config.Defaults()
	profile, err := cfg.Profile("")
	require.NoError(t, err)
	prober := media.ProberFunc(func(context.Context, string) (*media.StreamInfo, error) {
		if info == nil {
			return nil, errors.New("probe failed")
		}
		return info, nil
	})
	return New(Config{FFmpeg: "ffmpeg", Remux: cfg.Remux, Profile: profile}, prober, contentValidator{}, runner, zerolog.Nop())
}

func TestRemux_ShowWTVScenario(t *testing.T) {
	job := newJob(t, "show.wtv")
	info := &media.StreamInfo{
		VideoCodec: "mpeg2video", FPS: 29.97, VideoIndex: 0,
		Audio: []media.AudioTrack{
			{Index: 0, StreamIndex: 1, Codec: "ac3", Channels: 0},
			{Index: 1, StreamIndex: 2, Codec: "ac3", Channels: 2, Language: "eng"},
		},
	}
	runner := &fakeRunner{content: func(inv Invocation) string {
		if hasArgPair(inv.Args, "-map", "0:2") {
			return "good"
		}
		// Default stream selection keeps the broken first track.
		return "zero"
	}}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job, Mode: recording.ModeBoth})
	require.NoError(t, err)
	require.True(t, res.OK, res.Diagnostic)
	assert.False(t, res.Recoded)
	assert.Equal(t, job.RemuxedPath(), res.Path)
	assert.Equal(t, ".ts", filepath.Ext(res.Path))

	require.Len(t, runner.calls, 2, "one failing run, one repaired re-run")
	assert.True(t, hasArgPair(runner.calls[0].Args, "-map", "0"))
	assert.True(t, hasArgPair(runner.calls[1].Args, "-map", "0:0"))
	assert.False(t, hasArgPair(runner.calls[1].Args, "-map", "0"))

	require.Len(t, res.Attempts, 1)
	assert.Equal(t, config.KeyCopyRemux+"0", res.Attempts[0].Profile)
	assert.True(t, res.Attempts[0].OK)
}

func TestRemux_RepairBoundThenNextProfile(t *testing.T) {
	job := newJob(t, "show.wtv")
	info := &media.StreamInfo{
		VideoCodec: "mpeg2video", VideoIndex: 0,
		Audio: []media.AudioTrack{
			{Index: 0, StreamIndex: 1, Channels: 0},
			{Index: 1, StreamIndex: 2, Channels: 2},
		},
	}
	// Every output reports a zero-channel track.
	runner := &fakeRunner{content: func(Invocation) string { return "zero" }}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job, Mode: recording.ModeCopyOnly})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Diagnostic, "zero channels")

	// Per profile: the initial run plus one repaired re-run. The output-pass
	// repair picks the same track and so never re-runs.
	copyProfiles := 2
	assert.Len(t, runner.calls, copyProfiles*2)
	assert.Len(t, res.Attempts, copyProfiles)
	_, statErr := os.Stat(job.RemuxedPath())
	assert.True(t, os.IsNotExist(statErr), "rejected output is removed")
}

func TestRemux_NonEligibleCodecRecodes(t *testing.T) {
	job := newJob(t, "movie.mkv")
	info := &media.StreamInfo{VideoCodec: "vc1", FPS: 24000.0 / 1001.0, VideoIndex: 0, Audio: []media.AudioTrack{{StreamIndex: 1, Channels: 2}}}
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, res.Recoded)
	require.Len(t, runner.calls, 1)
	assert.True(t, hasArgPair(runner.calls[0].Args, "-r", "23.976"))
	assert.True(t, slices.Contains(runner.calls[0].Args, "-progress"))
}

func TestRemux_OutputSizeGuardOnlyForCopyRuns(t *testing.T) {
	job := newJob(t, "show.wtv")
	info := &media.StreamInfo{VideoCodec: "mpeg2video", FPS: 25, VideoIndex: 0, Audio: []media.AudioTrack{{StreamIndex: 1, Channels: 2}}}
	runner := &fakeRunner{content: func(inv Invocation) string {
		if slices.Contains(inv.Args, "libx264") {
			return "good"
		}
		return "unreadable"
	}}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	require.True(t, res.OK, res.Diagnostic)
	assert.True(t, res.Recoded)

	require.Len(t, runner.calls, 3)
	assert.True(t, runner.calls[0].Runaway, "CopyRemux0")
	assert.True(t, runner.calls[1].Runaway, "CopyRemux1")
	assert.False(t, runner.calls[2].Runaway, "SlowRemux0")
	assert.Positive(t, runner.calls[0].SourceSize)
}

func TestRemux_CopyOnlyWithIneligibleCodecFails(t *testing.T) {
	job := newJob(t, "movie.mkv")
	info := &media.StreamInfo{VideoCodec: "hevc", VideoIndex: 0}
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job, Mode: recording.ModeCopyOnly})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Diagnostic, "not eligible")
	assert.Empty(t, runner.calls)
}

func TestRemux_ProbeFailureStillRecodes(t *testing.T) {
	job := newJob(t, "odd.ts")
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, nil)

	res, err := e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, res.Recoded)
	assert.False(t, slices.Contains(runner.calls[0].Args, "auto"), "unknown rate is stripped")
	assert.False(t, slices.Contains(runner.calls[0].Args, "-r"))
}

func TestRemux_FrameWarning(t *testing.T) {
	job := newJob(t, "a.ts")
	info := &media.StreamInfo{VideoCodec: "h264", FPS: 25, VideoIndex: 0, Audio: []media.AudioTrack{{StreamIndex: 1, Channels: 2}}}
	runner := &fakeRunner{stats: Stats{Frames: 1000, Dropped: 31}}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, res.FrameWarning)
	assert.InDelta(t, 3.1, res.Attempts[0].DropRate, 1e-9)

	runner.stats = Stats{Frames: 1000, Dropped: 30, Duplicated: 30}
	res, err = e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	assert.False(t, res.FrameWarning, "threshold is exclusive")
}

func TestRemux_CancellationStopsProfileLoop(t *testing.T) {
	job := newJob(t, "a.ts")
	info := &media.StreamInfo{VideoCodec: "h264", VideoIndex: 0}
	runner := &fakeRunner{err: supervisor.ErrCancelled}
	e := defaultEngine(t, runner, info)

	_, err := e.Remux(context.Background(), Request{Job: job})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, runner.calls, 1)

	ctl := supervisor.NewJobControl()
	ctl.Cancel()
	runner.calls = nil
	_, err = e.Remux(context.Background(), Request{Job: job, Control: ctl})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, runner.calls)
}

func TestRemux_LanguagePreselected(t *testing.T) {
	job := newJob(t, "a.ts")
	job.AudioLanguage = "spa"
	info := &media.StreamInfo{
		VideoCodec: "h264", FPS: 25, VideoIndex: 0,
		Audio: []media.AudioTrack{
			{Index: 0, StreamIndex: 1, Channels: 6, Language: "eng"},
			{Index: 1, StreamIndex: 2, Channels: 2, Language: "spa"},
		},
	}
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, info)

	res, err := e.Remux(context.Background(), Request{Job: job})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, runner.calls, 1)
	assert.True(t, hasArgPair(runner.calls[0].Args, "-map", "0:2"))
}

func TestRunTool(t *testing.T) {
	job := newJob(t, "rec.tivo")
	job.DecryptionKey = "0123456789"
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, nil)

	res, err := e.RunTool(context.Background(), ToolRequest{
		Strategy: recording.StrategyDecryptRemux,
		Template: "tivodecode --mak <key> -o <output> <source>",
		Job:      job,
	})
	require.NoError(t, err)
	require.True(t, res.OK, res.Diagnostic)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "tivodecode", runner.calls[0].Bin)
	assert.Equal(t, []string{"--mak", "0123456789", "-o", job.RemuxedPath(), job.SourcePath}, runner.calls[0].Args)
	assert.NotContains(t, strings.Join(res.Attempts[0].Args, " "), "0123456789")
}

func TestRunTool_NotConfigured(t *testing.T) {
	job := newJob(t, "rec.wtv")
	runner := &fakeRunner{}
	e := defaultEngine(t, runner, nil)

	res, err := e.RunTool(context.Background(), ToolRequest{Strategy: recording.StrategyBackupTranscoder, Job: job})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Diagnostic, "not configured")
	assert.Empty(t, runner.calls)
}

func TestProgressParser(t *testing.T) {
	var p progressParser
	for _, l := range []string{"frame=10", "drop_frames=1", "dup_frames=2", "total_size=4096", "frame=5", "progress=end", "garbage"} {
		p.ParseLine(l)
	}
	s := p.Stats()
	assert.Equal(t, Stats{Frames: 10, Dropped: 1, Duplicated: 2, TotalSize: 4096, Ended: true}, s)
	assert.InDelta(t, 10.0, s.DropRate(), 1e-9)
	assert.InDelta(t, 20.0, s.DupRate(), 1e-9)
	assert.Zero(t, Stats{}.DropRate())
}

func TestCopyEligible(t *testing.T) {
	rc := config.RemuxConfig{AllowH264Copy: true}
	assert.True(t, CopyEligible(&media.StreamInfo{VideoCodec: "mpeg2video", VideoIndex: 0}, rc))
	assert.True(t, CopyEligible(&media.StreamInfo{VideoCodec: "h264", VideoIndex: 0}, rc))
	assert.False(t, CopyEligible(&media.StreamInfo{VideoCodec: "h264", VideoIndex: 0}, config.RemuxConfig{}))
	assert.False(t, CopyEligible(&media.StreamInfo{VideoCodec: "hevc", VideoIndex: 0}, rc))
	assert.True(t, CopyEligible(&media.StreamInfo{VideoCodec: "hevc", VideoIndex: 0}, config.RemuxConfig{AllowAllCodecs: true}))
	assert.True(t, CopyEligible(&media.StreamInfo{VideoIndex: media.NoStream, Audio: []media.AudioTrack{{Channels: 2}}}, rc))
	assert.False(t, CopyEligible(nil, rc))
}
