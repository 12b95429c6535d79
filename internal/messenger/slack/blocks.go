package slack

import (
	"fmt"
	"strings"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/fuelops/internal/messenger"
)

const maxSectionFields = 10

// BuildReportBlocks builds Slack Block Kit blocks for a report: a title
// section, up to ten fields per section, and a context block with details.
func BuildReportBlocks(r messenger.Report) []slacklib.Block {
	status := ":white_check_mark:"
	if !r.Success {
		status = ":x:"
	}
	title := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, fmt.Sprintf("%s *%s*", status, r.Title), false, false),
		nil,
		nil,
	)
	blocks := []slacklib.Block{title}

	for start := 0; start < len(r.Fields); start += maxSectionFields {
		end := min(start+maxSectionFields, len(r.Fields))
		fields := make([]*slacklib.TextBlockObject, 0, end-start)
		for _, f := range r.Fields[start:end] {
			fields = append(fields, slacklib.NewTextBlockObject(
				slacklib.MarkdownType, fmt.Sprintf("*%s*\n%s", f.Label, f.Value), false, false,
			))
		}
		blocks = append(blocks, slacklib.NewSectionBlock(nil, fields, nil))
	}

	if len(r.Details) > 0 {
		blocks = append(blocks, slacklib.NewContextBlock("",
			slacklib.NewTextBlockObject(slacklib.MarkdownType, strings.Join(r.Details, "\n"), false, false),
		))
	}

	return blocks
}

// FallbackText is the plain text shown in notifications and by clients that
// cannot render blocks.
func FallbackText(r messenger.Report) string {
	if r.Success {
		return r.Title
	}
	return r.Title + " (failed)"
}
