package reassemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ManuGH/pvremux/internal/engine"
	"github.com/ManuGH/pvremux/internal/media"
	"github.com/ManuGH/pvremux/internal/params"
	"github.com/ManuGH/pvremux/internal/supervisor"
)

// DescriptorHeader is the fixed option line of every descriptor.
const DescriptorHeader = "MUXOPT --no-pcr-on-video-pid --new-audio-pes --vbr --vbv-len=500"

// DescriptorBackend writes a muxer descriptor and runs the muxer on it.
type DescriptorBackend struct {
	Muxer  string
	Runner engine.Runner
}

func (b *DescriptorBackend) Name() string { return "descriptor" }

// Descriptor renders the descriptor text with CRLF line endings.
func Descriptor(plan Plan) (string, error) {
	lines := []string{DescriptorHeader}
	if v := plan.Video; v != nil {
		fps := params.FormatFPS(v.FPS)
		switch v.Family {
		case media.FamilyH264:
			lines = append(lines, fmt.Sprintf("V_MPEG4/ISO/AVC, %s, fps=%s, insertSEI, contSPS", quote(v.Path), fps))
		case media.FamilyMPEG2, media.FamilyMPEG1:
			lines = append(lines, fmt.Sprintf("V_MPEG-2, %s, fps=%s", quote(v.Path), fps))
		default:
			return "", fmt.Errorf("%w: muxer cannot carry %s video", ErrUnsupported, v.Family)
		}
	}
	shift := ""
	if plan.Video != nil && plan.Delay != 0 {
		shift = ", timeshift=" + formatSeconds(plan.Delay) + "s"
	}
	for _, a := range plan.Audio {
		tag, ok := audioTags[a.Family]
		if !ok {
			return "", fmt.Errorf("%w: muxer cannot carry %s audio", ErrUnsupported, a.Family)
		}
		lines = append(lines, fmt.Sprintf("%s, %s%s", tag, quote(a.Path), shift))
	}
	return strings.Join(lines, "\r\n") + "\r\n", nil
}

// ErrUnsupported means this backend cannot mux the plan; the next one may.
var ErrUnsupported = errors.New("unsupported by backend")

var audioTags = map[media.Family]string{
	media.FamilyAC3: "A_AC3",
	media.FamilyAAC: "A_AAC",
	media.FamilyDTS: "A_DTS",
	media.FamilyMP3: "A_MP3",
}

func quote(p string) string { return `"` + p + `"` }

// formatSeconds renders millisecond precision: -0.2, 1.5, 3.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(math.Round(s*1000)/1000, 'f', -1, 64)
}

// Mux writes the descriptor next to the output and always removes it.
func (b *DescriptorBackend) Mux(ctx context.Context, ctl *supervisor.JobControl, plan Plan, job Target) error {
	text, err := Descriptor(plan)
	if err != nil {
		return err
	}
	meta := job.DescriptorPath()
	if err := writeDescriptor(meta, text); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	defer func() { _ = os.Remove(meta) }()

	_, err = b.Runner.Run(ctx, ctl, engine.Invocation{
		Bin:        b.Muxer,
		Args:       []string{meta, job.Output},
		Dir:        job.WorkDir,
		SourceSize: job.SourceSize,
		Artifacts:  []string{job.Output},
		Runaway:    true,
	})
	return err
}
