package alert

import (
	"fmt"

	"crosspost/internal/runner"
)

// FromReport turns a finished run into an alert. Busy skips and clean runs
// produce nothing. The dedup key ignores the run id so a repeating failure
// alerts once per window.
func FromReport(rep runner.Report, onUnposted bool) (Alert, bool) {
	switch {
	case rep.Err != "":
		return Alert{
			Level: LevelError,
			Text:  fmt.Sprintf("crosspost run %s (%s) failed: %s", rep.RunID, rep.Trigger, rep.Err),
			Key:   "run-error|" + rep.Err,
		}, true
	case onUnposted && rep.Unposted > 0:
		return Alert{
			Level: LevelWarn,
			Text: fmt.Sprintf("crosspost run %s (%s): %d of %d articles reached no destination",
				rep.RunID, rep.Trigger, rep.Unposted, rep.Articles),
			Key: fmt.Sprintf("run-unposted|%d", rep.Unposted),
		}, true
	case rep.MarkFailed > 0:
		return Alert{
			Level: LevelWarn,
			Text: fmt.Sprintf("crosspost run %s (%s): %d posted articles could not be marked in Notion and may be reposted",
				rep.RunID, rep.Trigger, rep.MarkFailed),
			Key: fmt.Sprintf("run-markfailed|%d", rep.MarkFailed),
		}, true
	}
	return Alert{}, false
}
