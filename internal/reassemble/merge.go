package reassemble

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/ManuGH/pvremux/internal/supervisor"
)

// MergeBackend feeds every elementary stream to ffmpeg as its own input.
type MergeBackend struct {
	FFmpeg string
	Runner engine.Runner
}

func (b *MergeBackend) Name() string { return "merge" }

var rawFormats = map[media.Family]string{
	media.FamilyH264:  "h264",
	media.FamilyHEVC:  "hevc",
	media.FamilyMPEG2: "mpegvideo",
	media.FamilyMPEG1: "mpegvideo",
	media.FamilyAC3:   "ac3",
	media.FamilyAAC:   "aac",
	media.FamilyDTS:   "dts",
	media.FamilyMP3:   "mp3",
}

// MergeArgs builds the ffmpeg argv. The stream that starts later in the
// original container is delayed with -itsoffset.
func MergeArgs(plan Plan, output string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-progress", "pipe:1", "-fflags", "+genpts"}
	// d > 0: video started after audio.
	d := -plan.Delay
	input := 0
	var maps []string

	if v := plan.Video; v != nil {
		if d > 0 {
			args = append(args, "-itsoffset", formatSeconds(d))
		}
		args = append(args, "-r", params.FormatFPS(v.FPS))
		if f, ok := rawFormats[v.Family]; ok {
			args = append(args, "-f", f)
		}
		args = append(args, "-i", v.Path)
		maps = append(maps, "-map", strconv.Itoa(input)+":v:0")
		input++
	}
	for _, a := range plan.Audio {
		// d < 0: audio started later; -itsoffset takes the delay as a magnitude.
		if plan.Video != nil && d < 0 {
			args = append(args, "-itsoffset", formatSeconds(-d))
		}
		if f, ok := rawFormats[a.Family]; ok {
			args = append(args, "-f", f)
		}
		args = append(args, "-i", a.Path)
		maps = append(maps, "-map", strconv.Itoa(input)+":a:0")
		input++
	}
	args = append(args, maps...)
	return append(args, "-c", "copy", "-f", "mpegts", output)
}

func (b *MergeBackend) Mux(ctx context.Context, ctl *supervisor.JobControl, plan Plan, job Target) error {
	if b.FFmpeg == "" {
		return fmt.Errorf("%w: ffmpeg not configured", ErrUnsupported)
	}
	_, err := b.Runner.Run(ctx, ctl, engine.Invocation{
		Bin:        b.FFmpeg,
		Args:       MergeArgs(plan, job.Output),
		Dir:        job.WorkDir,
		SourceSize: job.SourceSize,
		Artifacts:  []string{job.Output},
		Runaway:    true,
	})
	return err
}
