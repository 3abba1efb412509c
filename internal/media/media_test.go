package media

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wtvProbe = `{
  "streams": [
    {"index": 0, "codec_name": "mpeg2video", "codec_type": "video", "avg_frame_rate": "30000/1001", "r_frame_rate": "60000/1001", "start_time": "1.200000"},
    {"index": 1, "codec_name": "ac3", "codec_type": "audio", "channels": 0, "start_time": "1.000000", "tags": {"language": "und"}},
    {"index": 2, "codec_name": "ac3", "codec_type": "audio", "channels": 2, "start_time": "1.000000", "tags": {"language": "eng"}},
    {"index": 3, "codec_name": "ac3", "codec_type": "audio", "channels": 2, "disposition": {"visual_impaired": 1}, "tags": {"language": "eng"}},
    {"index": 4, "codec_name": "mjpeg", "codec_type": "video", "disposition": {"attached_pic": 1}}
  ],
  "format": {"format_name": "wtv", "duration": "3600.5"}
}`

func TestParseFFProbeJSON(t *testing.T) {
	info, err := ParseFFProbeJSON([]byte(wtvProbe))
	require.NoError(t, err)

	want := &StreamInfo{
		Container:  "wtv",
		VideoCodec: "mpeg2video",
		FPS:        30000.0 / 1001.0,
		VideoIndex: 0,
		VideoStart: 1.2,
		Duration:   3600.5,
		Audio: []AudioTrack{
			{Index: 0, StreamIndex: 1, Codec: "ac3", Channels: 0, Start: 1},
			{Index: 1, StreamIndex: 2, Codec: "ac3", Channels: 2, Language: "eng", Start: 1},
			{Index: 2, StreamIndex: 3, Codec: "ac3", Channels: 2, Language: "eng", Impaired: true},
		},
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("probe mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, info.HasZeroChannelAudio())
	assert.Equal(t, 1, info.ImpairedCount())
	assert.Equal(t, 2, info.NonImpairedCount())
	assert.InDelta(t, -0.2, info.AudioDelay(), 1e-9)
}

func TestParseFFProbeJSON_NoStreams(t *testing.T) {
	_, err := ParseFFProbeJSON([]byte(`{"streams":[],"format":{"format_name":"mpegts"}}`))
	assert.ErrorIs(t, err, ErrNoStreams)
}

func TestFFProbe_AcceptsNonZeroExitWithJSON(t *testing.T) {
	p := NewFFProbe("ffprobe")
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "ffprobe", name)
		assert.Equal(t, "/rec/show.wtv", args[len(args)-1])
		return []byte(wtvProbe), []byte("truncated packet"), errors.New("exit status 1")
	}
	info, err := p.Probe(context.Background(), "/rec/show.wtv")
	require.NoError(t, err)
	assert.Equal(t, "mpeg2video", info.VideoCodec)
}

func TestFFProbe_FailsWithoutJSON(t *testing.T) {
	p := NewFFProbe("")
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("No such file"), errors.New("exit status 1")
	}
	_, err := p.Probe(context.Background(), "/missing.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file")
}

func TestParseMediaInfoJSON(t *testing.T) {
	doc := `{"media":{"track":[
	  {"@type":"General","Format":"MPEG-TS","Duration":"120.000"},
	  {"@type":"Video","StreamOrder":"0","Format":"MPEG Video","Format_Version":"Version 2","FrameRate":"29.970","Delay":"0.500"},
	  {"@type":"Audio","StreamOrder":"1","Format":"AC-3","Channels":"6","Language":"en","Delay":"0.400"},
	  {"@type":"Audio","StreamOrder":"2","Format":"MPEG Audio","Format_Profile":"Layer 3","Channels":"2","ServiceKind":"VI"}
	]}}`
	info, err := ParseMediaInfoJSON([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "mpeg2video", info.VideoCodec)
	assert.InDelta(t, 29.97, info.FPS, 1e-9)
	require.Len(t, info.Audio, 2)
	assert.Equal(t, AudioTrack{Index: 0, StreamIndex: 1, Codec: "ac3", Channels: 6, Language: "en", Start: 0.4}, info.Audio[0])
	assert.Equal(t, "mp3", info.Audio[1].Codec)
	assert.True(t, info.Audio[1].Impaired)
}

func TestReconcile(t *testing.T) {
	a := &StreamInfo{VideoCodec: "h264", FPS: 59.94, VideoIndex: 0}
	b := &StreamInfo{VideoCodec: "h264", FPS: 29.97, VideoIndex: 0}
	fail := errors.New("probe failed")

	got, err := Reconcile(a, nil, b, nil)
	require.NoError(t, err)
	assert.Equal(t, 29.97, got.FPS)
	assert.Equal(t, 59.94, a.FPS, "inputs are not mutated")

	got, err = Reconcile(&StreamInfo{FPS: 0, VideoIndex: 0, VideoCodec: "h264"}, nil, b, nil)
	require.NoError(t, err)
	assert.Equal(t, 29.97, got.FPS, "zero rate is ignored")

	got, err = Reconcile(nil, fail, b, nil)
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = Reconcile(nil, fail, nil, fail)
	assert.ErrorIs(t, err, fail)
}

func TestDualProber_FallbackOnlyWhenNeeded(t *testing.T) {
	calls := 0
	fallback := ProberFunc(func(ctx context.Context, path string) (*StreamInfo, error) {
		calls++
		return &StreamInfo{VideoCodec: "h264", FPS: 25, VideoIndex: 0}, nil
	})
	good := ProberFunc(func(ctx context.Context, path string) (*StreamInfo, error) {
		return &StreamInfo{VideoCodec: "h264", FPS: 50, VideoIndex: 0}, nil
	})
	noRate := ProberFunc(func(ctx context.Context, path string) (*StreamInfo, error) {
		return &StreamInfo{VideoCodec: "h264", VideoIndex: 0}, nil
	})

	info, err := DualProber{Primary: good, Fallback: fallback}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 50.0, info.FPS)
	assert.Zero(t, calls)

	info, err = DualProber{Primary: noRate, Fallback: fallback}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 25.0, info.FPS)

	info, err = DualProber{Primary: good, Fallback: fallback, Always: true}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 25.0, info.FPS)
	assert.Equal(t, 2, calls)
}

func TestDualProber_FallbackFailureKeepsPrimary(t *testing.T) {
	good := ProberFunc(func(ctx context.Context, path string) (*StreamInfo, error) {
		return &StreamInfo{VideoCodec: "h264", FPS: 50, VideoIndex: 0}, nil
	})
	broken := ProberFunc(func(ctx context.Context, path string) (*StreamInfo, error) {
		return nil, errors.New("mediainfo: not installed")
	})

	info, err := DualProber{Primary: good, Fallback: broken, Always: true}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 50.0, info.FPS)
}

func TestFamilies(t *testing.T) {
	assert.Equal(t, FamilyH264, VideoFamily("h264"))
	assert.Equal(t, FamilyMPEG2, VideoFamily("mpeg2video"))
	assert.True(t, IsLegacyMPEG("mpeg1video"))
	assert.False(t, IsLegacyMPEG("hevc"))
	assert.Equal(t, FamilyAC3, AudioFamily("eac3"))
	assert.Equal(t, FamilyMP3, AudioFamily("mp2"))
	assert.Equal(t, FamilyUnknown, AudioFamily("opus"))
	assert.Equal(t, "ts", normalizeContainer("mpegts"))
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 25.0, ParseRate("25/1"))
	assert.Equal(t, 0.0, ParseRate("0/0"))
	assert.Equal(t, 0.0, ParseRate("1/0"))
	assert.Equal(t, 23.976, ParseRate("23.976"))
}
