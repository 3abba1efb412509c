package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/pvremux/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber map[string]*media.StreamInfo

func (f fakeProber) Probe(_ context.Context, path string) (*media.StreamInfo, error) {
	if info, ok := f[path]; ok {
		return info, nil
	}
	return nil, errors.New("unprobeable")
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func tsPackets(n int) []byte {
	out := make([]byte, 0, n*188)
	for i := 0; i < n; i++ {
		pkt := make([]byte, 188)
		pkt[0] = 0x47
		pkt[1] = 0x1F
		pkt[2] = 0xFF
		pkt[3] = 0x10
		out = append(out, pkt...)
	}
	return out
}

func regular(ch int) media.AudioTrack { return media.AudioTrack{Channels: ch} }

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "show.wtv", []byte("source"))
	good := writeFile(t, dir, "good.ts", tsPackets(4))
	empty := writeFile(t, dir, "empty.ts", nil)
	zero := writeFile(t, dir, "zero.ts", tsPackets(2))
	impairedOnly := writeFile(t, dir, "impaired.ts", tsPackets(2))
	unprobeable := writeFile(t, dir, "garbage.ts", tsPackets(1))

	prober := fakeProber{
		src:          {VideoIndex: 0, VideoCodec: "mpeg2video", Audio: []media.AudioTrack{regular(2), regular(2), {Channels: 2, Impaired: true}}},
		good:         {VideoIndex: 0, VideoCodec: "mpeg2video", Audio: []media.AudioTrack{regular(2)}},
		zero:         {VideoIndex: 0, VideoCodec: "mpeg2video", Audio: []media.AudioTrack{regular(0)}},
		impairedOnly: {VideoIndex: 0, VideoCodec: "mpeg2video", Audio: []media.AudioTrack{{Channels: 2, Impaired: true}}},
	}
	v := New(prober, Options{}, zerolog.Nop())

	tests := []struct {
		name string
		path string
		want Code
	}{
		{"valid", good, CodeOK},
		{"missing", filepath.Join(dir, "nope.ts"), CodeMissing},
		{"empty", empty, CodeEmpty},
		{"zero channel", zero, CodeZeroChannel},
		{"no regular audio", impairedOnly, CodeNoRegularAudio},
		{"probe failure", unprobeable, CodeProbeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(context.Background(), tt.path, src)
			assert.Equal(t, tt.want, res.Code, res.Reason)
			assert.Equal(t, tt.want == CodeOK, res.OK)
		})
	}
}

func TestValidate_SourceWithoutAudioIsExempt(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "silent.wtv", []byte("x"))
	out := writeFile(t, dir, "silent.ts", tsPackets(1))
	prober := fakeProber{
		src: {VideoIndex: 0, VideoCodec: "h264"},
		out: {VideoIndex: 0, VideoCodec: "h264"},
	}
	res := New(prober, Options{}, zerolog.Nop()).Validate(context.Background(), out, src)
	assert.True(t, res.OK)
}

func TestValidate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.wtv", []byte("x"))
	out := writeFile(t, dir, "a.ts", tsPackets(3))
	prober := fakeProber{
		src: {VideoIndex: 0, VideoCodec: "h264", Audio: []media.AudioTrack{regular(0), regular(2)}},
		out: {VideoIndex: 0, VideoCodec: "h264", Audio: []media.AudioTrack{regular(0)}},
	}
	v := New(prober, Options{VerifyTransportStream: true}, zerolog.Nop())

	first := v.Validate(context.Background(), out, src)
	second := v.Validate(context.Background(), out, src)
	assert.Equal(t, first, second)
	assert.True(t, first.AudioProblem())
}

func TestValidate_TransportStreamCheck(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.ts", []byte("this is definitely not a transport stream, just some text padding it out"))
	prober := fakeProber{bad: {VideoIndex: 0, VideoCodec: "h264"}}

	res := New(prober, Options{VerifyTransportStream: true}, zerolog.Nop()).Validate(context.Background(), bad, "")
	assert.Equal(t, CodeCorrupt, res.Code)

	res = New(prober, Options{}, zerolog.Nop()).Validate(context.Background(), bad, "")
	assert.True(t, res.OK, "packet check is opt-in")
}

func TestCheckTransportStream(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.ts", append(tsPackets(3), 0x47, 0x00))
	require.NoError(t, CheckTransportStream(ok, 1000))

	short := writeFile(t, dir, "short.ts", []byte{0x47})
	assert.ErrorIs(t, CheckTransportStream(short, 1000), ErrNotTransportStream)

	corrupt := tsPackets(3)
	corrupt[188] = 0x00
	bad := writeFile(t, dir, "corrupt.ts", corrupt)
	assert.ErrorIs(t, CheckTransportStream(bad, 1000), ErrNotTransportStream)
	assert.NoError(t, CheckTransportStream(bad, 1), "only the first packet is read")
}
