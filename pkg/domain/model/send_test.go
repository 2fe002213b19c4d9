package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

func TestSendReport(t *testing.T) {
	var report model.SendReport
	gt.Array(t, report.Sample(3)).Length(0)

	report.Fail("U1", "channel_not_found")
	report.Fail("U2", "User not found in cache (sync may be stale).")
	report.Fail("U3", "ratelimited")

	gt.Number(t, report.Failed).Equal(3)
	gt.Value(t, report.Sample(2)).Equal([]string{
		"U1: channel_not_found",
		"U2: User not found in cache (sync may be stale).",
	})
	gt.Array(t, report.Sample(10)).Length(3)
}
